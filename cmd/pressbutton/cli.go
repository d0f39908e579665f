package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alphabot-ai/pressbutton/internal/client"
	"github.com/alphabot-ai/pressbutton/internal/model"
)

const defaultBaseURL = "http://localhost:8080"

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Email    string `json:"email"`
	UserID   int64  `json:"user_id"`
	Token    string `json:"token"`
	TokenExp string `json:"token_expires"`
}

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Account email (required)")
	password := fs.String("password", "", "Account password, at least 8 characters (required)")
	name := fs.String("name", "", "Display name")
	url := fs.String("url", "", "pressbutton server URL")
	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Error: --email and --password are required")
		os.Exit(1)
	}

	c := client.New(baseURLOr(*url))
	if _, err := c.Register(*email, *password, *name); err != nil {
		if errors.Is(err, client.ErrAlreadyRegistered) {
			fmt.Println("Account already exists, logging in...")
		} else {
			fatalf("register: %v", err)
		}
	}
	login(c, *email, *password)
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Account email (defaults to the saved one)")
	password := fs.String("password", "", "Account password (required)")
	url := fs.String("url", "", "pressbutton server URL")
	fs.Parse(args)

	saved, _ := loadCLIConfig()
	if *email == "" {
		*email = saved.Email
	}
	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Error: --email and --password are required")
		os.Exit(1)
	}
	login(client.New(baseURLOr(*url)), *email, *password)
}

func login(c *client.Client, email, password string) {
	user, err := c.Login(email, password)
	if err != nil {
		fatalf("login: %v", err)
	}
	cfg := CLIConfig{
		BaseURL:  c.BaseURL,
		Email:    user.Email,
		UserID:   user.ID,
		Token:    c.Token,
		TokenExp: c.TokenExp.Format(time.RFC3339),
	}
	if err := saveCLIConfig(cfg); err != nil {
		fatalf("save config: %v", err)
	}
	fmt.Printf("Logged in as %s (user #%d), token valid until %s\n", user.Email, user.ID, cfg.TokenExp)
}

func cmdAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	yes := fs.String("yes", "", "What you get for pressing (required)")
	no := fs.String("no", "", "The catch (required)")
	fs.Parse(args)

	if *yes == "" || *no == "" {
		fmt.Fprintln(os.Stderr, "Error: --yes and --no are required")
		os.Exit(1)
	}
	c := mustAuthenticatedClient()
	q, err := c.CreateQuestion(*yes, *no)
	if err != nil {
		fatalf("ask: %v", err)
	}
	fmt.Printf("Posted question #%d\n", q.ID)
}

func cmdVote(args []string) {
	fs := flag.NewFlagSet("vote", flag.ExitOnError)
	questionID := fs.Int64("question", 0, "Question ID (required)")
	press := fs.Bool("press", false, "Press the button")
	dont := fs.Bool("dont", false, "Don't press the button")
	fs.Parse(args)

	if *questionID == 0 || *press == *dont {
		fmt.Fprintln(os.Stderr, "Error: --question and exactly one of --press or --dont are required")
		os.Exit(1)
	}
	choice := model.ChoicePress
	if *dont {
		choice = model.ChoiceDontPress
	}

	c := mustAuthenticatedClient()
	if _, err := c.Vote(*questionID, choice); err != nil {
		fatalf("vote: %v", err)
	}
	st, err := c.VoteStatus(*questionID)
	if err != nil {
		fatalf("vote status: %v", err)
	}
	fmt.Printf("Voted %s on #%d. %.2f%% of %d voters press.\n", choice, *questionID, st.PositivePercentage, st.TotalVotes)
}

func cmdComment(args []string) {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	questionID := fs.Int64("question", 0, "Question ID (required)")
	text := fs.String("text", "", "Comment text (required)")
	fs.Parse(args)

	if *questionID == 0 || *text == "" {
		fmt.Fprintln(os.Stderr, "Error: --question and --text are required")
		os.Exit(1)
	}
	c := mustAuthenticatedClient()
	cm, err := c.AddComment(*questionID, *text)
	if err != nil {
		fatalf("comment: %v", err)
	}
	fmt.Printf("Posted comment #%d on question #%d\n", cm.ID, *questionID)
}

func cmdDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	questionID := fs.Int64("question", 0, "Question ID to delete, with all its votes and comments")
	commentID := fs.Int64("comment", 0, "Comment ID to delete")
	fs.Parse(args)

	if (*questionID == 0) == (*commentID == 0) {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --question or --comment is required")
		os.Exit(1)
	}
	c := mustAuthenticatedClient()
	if *questionID != 0 {
		if err := c.DeleteQuestion(*questionID); err != nil {
			fatalf("delete question: %v", err)
		}
		fmt.Printf("Deleted question #%d\n", *questionID)
		return
	}
	if err := c.DeleteComment(*commentID); err != nil {
		fatalf("delete comment: %v", err)
	}
	fmt.Printf("Deleted comment #%d\n", *commentID)
}

func cmdRead(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	sort := fs.String("sort", "newest", "Sort: newest, oldest, most_voted")
	search := fs.String("search", "", "Case-insensitive text search")
	page := fs.Int("page", 1, "Page number")
	limit := fs.Int("limit", 10, "Questions per page")
	questionID := fs.Int64("question", 0, "Show one question with its comments")
	fs.Parse(args)

	cfg, _ := loadCLIConfig()
	c := client.New(baseURLOr(cfg.BaseURL))

	if *questionID != 0 {
		q, err := c.GetQuestion(*questionID)
		if err != nil {
			fatalf("%v", err)
		}
		st, err := c.VoteStatus(*questionID)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("\n#%d by %s\n", q.ID, authorLabel(q.AuthorName, q.AuthorID))
		fmt.Printf("  PRESS:  %s\n", q.PositiveOutcome)
		fmt.Printf("  BUT:    %s\n", q.NegativeOutcome)
		fmt.Printf("  %d press / %d don't (%.2f%% press)\n", st.PositiveVotes, st.NegativeVotes, st.PositivePercentage)

		comments, err := c.ListComments(*questionID, 1, 50)
		if err == nil && len(comments.Items) > 0 {
			fmt.Printf("\n  --- Comments (%d) ---\n", comments.Pagination.Total)
			for _, cm := range comments.Items {
				fmt.Printf("  [%d] %s: %s\n", cm.ID, authorLabel(cm.AuthorName, cm.UserID), cm.Content)
			}
		}
		return
	}

	result, err := c.ListQuestions(client.ListOptions{
		Page:   *page,
		Limit:  *limit,
		Search: *search,
		SortBy: model.SortOrder(*sort),
	})
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("\nWould you press it? (%s, page %d of %d)\n\n", *sort, result.Pagination.Page, result.Pagination.TotalPages)
	for _, q := range result.Items {
		fmt.Printf("#%d %s\n", q.ID, q.PositiveOutcome)
		fmt.Printf("   but %s\n", q.NegativeOutcome)
		fmt.Printf("   %d votes | %d comments | by %s\n\n", q.VoteCount, q.CommentCount, authorLabel(q.AuthorName, q.AuthorID))
	}
}

func cmdStatus(args []string) {
	cfg, err := loadCLIConfig()
	if err != nil {
		fmt.Println("Status: Not logged in")
		fmt.Println("\nRun: pressbutton register --email <email> --password <password>")
		return
	}
	fmt.Printf("Server:  %s\n", cfg.BaseURL)
	fmt.Printf("Account: %s (user #%d)\n", cfg.Email, cfg.UserID)
	if exp, err := time.Parse(time.RFC3339, cfg.TokenExp); err == nil {
		if time.Now().After(exp) {
			fmt.Println("Token:   expired, run 'pressbutton login'")
		} else {
			fmt.Printf("Token:   valid for %s\n", time.Until(exp).Round(time.Minute))
		}
	}
}

func authorLabel(name string, id int64) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("user #%d", id)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func baseURLOr(url string) string {
	if url != "" {
		return url
	}
	if cfg, err := loadCLIConfig(); err == nil && cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return defaultBaseURL
}

func cliConfigPath() string {
	if dir := os.Getenv("PRESSBUTTON_CLI_HOME"); dir != "" {
		return filepath.Join(dir, "config.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pressbutton", "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, err
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	path := cliConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(path, data, 0600)
}

func loadAuthenticatedClient() (*client.Client, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, errors.New("not logged in - run 'pressbutton login'")
	}
	exp, _ := time.Parse(time.RFC3339, cfg.TokenExp)
	if time.Now().After(exp) {
		return nil, errors.New("token expired - run 'pressbutton login'")
	}

	c := client.New(cfg.BaseURL)
	c.Token = cfg.Token
	c.TokenExp = exp
	return c, nil
}

func mustAuthenticatedClient() *client.Client {
	c, err := loadAuthenticatedClient()
	if err != nil {
		fatalf("%v", err)
	}
	return c
}
