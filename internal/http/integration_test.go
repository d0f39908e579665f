package httpapp

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alphabot-ai/pressbutton/internal/client"
	"github.com/alphabot-ai/pressbutton/internal/model"
	"github.com/alphabot-ai/pressbutton/internal/rate"
)

func newTestHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(newTestServer(t, testConfig(), rate.NewMemory()))
	t.Cleanup(ts.Close)
	return ts
}

func newUserClient(t *testing.T, baseURL, name string) (*client.Client, *model.User) {
	t.Helper()
	c, user, err := client.NewTestHelper(baseURL).CreateAuthenticatedClient(name)
	if err != nil {
		t.Fatalf("create client %s: %v", name, err)
	}
	return c, user
}

func expectStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != status {
		t.Fatalf("expected status %d, got %v", status, err)
	}
}

func TestQuestionLifecycle(t *testing.T) {
	ts := newTestHTTPServer(t)
	alice, aliceUser := newUserClient(t, ts.URL, "alice")
	bob, _ := newUserClient(t, ts.URL, "bob")

	me, err := alice.Me()
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.ID != aliceUser.ID || me.Email != "alice@example.com" {
		t.Fatalf("unexpected me: %+v", me)
	}

	q, err := alice.CreateQuestion("You get superpowers", "Everyone else does too")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	if q.AuthorID != aliceUser.ID || q.AuthorName != "alice" {
		t.Fatalf("unexpected question: %+v", q)
	}

	if _, err := bob.Vote(q.ID, model.ChoicePress); err != nil {
		t.Fatalf("bob vote: %v", err)
	}
	if _, err := alice.Vote(q.ID, model.ChoiceDontPress); err != nil {
		t.Fatalf("alice vote: %v", err)
	}
	v, err := bob.Vote(q.ID, model.ChoiceDontPress)
	if err != nil {
		t.Fatalf("bob revote: %v", err)
	}
	if v.Choice != model.ChoiceDontPress {
		t.Fatalf("expected updated choice, got %s", v.Choice)
	}
	mine, err := bob.MyVote(q.ID)
	if err != nil || mine.ID != v.ID {
		t.Fatalf("expected bob's vote %d, got %+v (%v)", v.ID, mine, err)
	}

	status, err := bob.VoteStatus(q.ID)
	if err != nil {
		t.Fatalf("vote status: %v", err)
	}
	if status.TotalVotes != 2 || status.NegativeVotes != 2 || status.PositivePercentage != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}

	if _, err := bob.AddComment(q.ID, "tough call"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	comments, err := alice.ListComments(q.ID, 1, 10)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if comments.Pagination.Total != 1 || comments.Items[0].AuthorName != "bob" {
		t.Fatalf("unexpected comments: %+v", comments)
	}

	// Only the author may delete; others see 404.
	expectStatus(t, bob.DeleteQuestion(q.ID), http.StatusNotFound)

	if err := alice.DeleteQuestion(q.ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	_, err = alice.GetQuestion(q.ID)
	expectStatus(t, err, http.StatusNotFound)
	_, err = bob.VoteStatus(q.ID)
	expectStatus(t, err, http.StatusNotFound)
	_, err = bob.ListComments(q.ID, 1, 10)
	expectStatus(t, err, http.StatusNotFound)
}

func TestVoteValidation(t *testing.T) {
	ts := newTestHTTPServer(t)
	alice, _ := newUserClient(t, ts.URL, "alice")

	q, err := alice.CreateQuestion("a", "b")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	_, err = alice.Vote(q.ID, model.Choice("MAYBE"))
	expectStatus(t, err, http.StatusBadRequest)

	_, err = alice.Vote(q.ID+100, model.ChoicePress)
	expectStatus(t, err, http.StatusNotFound)

	_, err = alice.MyVote(q.ID)
	expectStatus(t, err, http.StatusNotFound)

	_, err = alice.CreateQuestion("   ", "b")
	expectStatus(t, err, http.StatusBadRequest)

	_, err = alice.AddComment(q.ID, "")
	expectStatus(t, err, http.StatusBadRequest)
}

func TestCommentDeletionOwnership(t *testing.T) {
	ts := newTestHTTPServer(t)
	alice, _ := newUserClient(t, ts.URL, "alice")
	bob, _ := newUserClient(t, ts.URL, "bob")

	q, _ := alice.CreateQuestion("a", "b")
	c, err := bob.AddComment(q.ID, "mine")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	expectStatus(t, alice.DeleteComment(c.ID), http.StatusNotFound)
	if err := bob.DeleteComment(c.ID); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
	expectStatus(t, bob.DeleteComment(c.ID), http.StatusNotFound)
}

func TestListQuestionsOverHTTP(t *testing.T) {
	ts := newTestHTTPServer(t)
	alice, aliceUser := newUserClient(t, ts.URL, "alice")
	bob, _ := newUserClient(t, ts.URL, "bob")

	for i := 0; i < 12; i++ {
		if _, err := alice.CreateQuestion(fmt.Sprintf("Alice perk %d", i), "catch"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	popular, err := bob.CreateQuestion("Bob PERK", "catch")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := alice.Vote(popular.ID, model.ChoicePress); err != nil {
		t.Fatalf("vote: %v", err)
	}

	page, err := bob.ListQuestions(client.ListOptions{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 13 || page.Pagination.TotalPages != 2 || len(page.Items) != 3 {
		t.Fatalf("unexpected page: %+v", page.Pagination)
	}

	page, _ = bob.ListQuestions(client.ListOptions{SortBy: model.SortMostVoted, Limit: 1})
	if page.Items[0].ID != popular.ID || page.Items[0].VoteCount != 1 {
		t.Fatalf("expected most voted first, got %+v", page.Items[0])
	}

	page, _ = bob.ListQuestions(client.ListOptions{Search: "perk", AuthorID: aliceUser.ID, Limit: 100})
	if page.Pagination.Total != 12 {
		t.Fatalf("expected 12 of alice's questions, got %d", page.Pagination.Total)
	}

	page, _ = bob.ListQuestions(client.ListOptions{Page: 5})
	if len(page.Items) != 0 || page.Pagination.Total != 13 {
		t.Fatalf("expected empty page past the end, got %+v", page)
	}
}

func TestConcurrentVotesOverHTTP(t *testing.T) {
	ts := newTestHTTPServer(t)
	alice, _ := newUserClient(t, ts.URL, "alice")
	q, _ := alice.CreateQuestion("a", "b")

	voters := make([]*client.Client, 4)
	for i := range voters {
		voters[i], _ = newUserClient(t, ts.URL, fmt.Sprintf("voter%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(voters)*3)
	for _, c := range voters {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(c *client.Client, choice model.Choice) {
				defer wg.Done()
				if _, err := c.Vote(q.ID, choice); err != nil {
					errs <- err
				}
			}(c, []model.Choice{model.ChoicePress, model.ChoiceDontPress}[i%2])
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("vote: %v", err)
	}

	status, err := alice.VoteStatus(q.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.TotalVotes != len(voters) {
		t.Fatalf("expected %d votes, got %d", len(voters), status.TotalVotes)
	}
}
