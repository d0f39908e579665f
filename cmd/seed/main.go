package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/alphabot-ai/pressbutton/internal/client"
	"github.com/alphabot-ai/pressbutton/internal/model"
)

var users = []struct {
	name     string
	email    string
	password string
}{
	{"ada", "ada@example.com", "seed-password-ada"},
	{"grace", "grace@example.com", "seed-password-grace"},
	{"linus", "linus@example.com", "seed-password-linus"},
	{"margaret", "margaret@example.com", "seed-password-margaret"},
	{"ken", "ken@example.com", "seed-password-ken"},
}

var questions = []struct {
	positive string
	negative string
}{
	{"You can teleport anywhere", "Every teleport costs you a random memory"},
	{"You never need to sleep again", "You can never dream again"},
	{"You get $10 million", "Your best friend gets $100 million"},
	{"You can speak every language", "You forget your native one"},
	{"You always find a parking spot", "It is always at least a mile away"},
	{"Your code compiles on the first try", "Nobody ever reads it"},
	{"You live to 150", "You spend the last 50 years in a waiting room"},
	{"You can pause time", "Only while holding your breath"},
	{"Infinite pizza", "It is always pineapple"},
	{"You know when anyone is lying", "You can never lie again"},
}

var comments = []string{
	"Pressing without a second thought.",
	"This one is a trap and everyone knows it.",
	"The downside is worse than it looks.",
	"I would press it twice if I could.",
	"Hard pass.",
	"Depends on the fine print.",
	"My gut says press, my brain says run.",
	"Honestly the negative sounds kind of fun.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "pressbutton server URL")
	flag.Parse()

	log.Printf("Seeding pressbutton at %s...\n", *baseURL)

	var clients []*client.Client
	for _, u := range users {
		c := client.New(*baseURL)
		if _, err := c.RegisterAndLogin(u.email, u.password, u.name); err != nil {
			log.Fatalf("register %s: %v", u.name, err)
		}
		log.Printf("✓ Registered user: %s", u.name)
		clients = append(clients, c)
	}

	var questionIDs []int64
	for _, q := range questions {
		idx := rand.Intn(len(clients))
		created, err := clients[idx].CreateQuestion(q.positive, q.negative)
		if err != nil {
			log.Printf("✗ Failed to create question: %v", err)
			continue
		}
		questionIDs = append(questionIDs, created.ID)
		log.Printf("✓ Question #%d (by %s)", created.ID, users[idx].name)
	}

	votes := 0
	for _, c := range clients {
		for _, qid := range questionIDs {
			if rand.Float32() < 0.3 {
				continue
			}
			choice := model.ChoicePress
			if rand.Float32() < 0.4 {
				choice = model.ChoiceDontPress
			}
			if _, err := c.Vote(qid, choice); err != nil {
				log.Printf("✗ Failed to vote on #%d: %v", qid, err)
				continue
			}
			votes++
		}
	}
	log.Printf("✓ Added %d votes", votes)

	added := 0
	for _, qid := range questionIDs {
		n := rand.Intn(3) + 1
		for i := 0; i < n; i++ {
			idx := rand.Intn(len(clients))
			if _, err := clients[idx].AddComment(qid, comments[rand.Intn(len(comments))]); err != nil {
				log.Printf("✗ Failed to comment on #%d: %v", qid, err)
				continue
			}
			added++
		}
	}
	log.Printf("✓ Added %d comments", added)

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users:     %d\n", len(users))
	fmt.Printf("Questions: %d\n", len(questionIDs))
	fmt.Printf("Votes:     %d\n", votes)
	fmt.Printf("Comments:  %d\n", added)
	fmt.Println("\nAPI at:", *baseURL+"/api/questions")
}
