package main

import (
	"context"
	"fmt"
	"io"
)

// demo values replayed by the demo command.
var (
	demoUser = signupPayload{
		Username: "john_doe",
		Email:    "john@example.com",
		Password: "securepass123",
		FullName: "John Doe",
	}
	demoBook = bookPayload{
		Title:       "Python Programming",
		Author:      "John Smith",
		ISBN:        "978-0123456789",
		Category:    "Programming",
		TotalCopies: 5,
	}
)

// runDemo walks through signup, login, book creation, search, borrow and
// loans listing. Each step result is printed. A failed login stops the demo
// since next steps need the token.
func runDemo(ctx context.Context, c *Client, out io.Writer) error {
	res, err := c.Signup(ctx, demoUser)
	if err != nil {
		return err
	}
	printResult(out, "signup", res)

	res, token, err := c.Login(ctx, loginPayload{Username: demoUser.Username, Password: demoUser.Password})
	if err != nil {
		return err
	}
	printResult(out, "login", res)
	if token == "" {
		return fmt.Errorf("login failed with status %d: %s", res.StatusCode, res.Envelope.Message)
	}
	c.SetToken(token)

	if res, err = c.CreateBook(ctx, demoBook); err != nil {
		return err
	}
	printResult(out, "create book", res)

	category, available := demoBook.Category, true
	if res, err = c.SearchBooks(ctx, &category, &available); err != nil {
		return err
	}
	printResult(out, "search books", res)

	if res, err = c.Borrow(ctx, borrowPayload{BookID: 1, UserID: 1}); err != nil {
		return err
	}
	printResult(out, "borrow", res)

	if res, err = c.MyLoans(ctx); err != nil {
		return err
	}
	printResult(out, "my loans", res)
	return nil
}

// printResult writes the step name with its status and the indented body.
func printResult(out io.Writer, step string, res *Result) {
	fmt.Fprintf(out, "==> %s: %d\n", step, res.StatusCode)
	var body interface{}
	if err := json.Unmarshal(res.Body, &body); err != nil {
		fmt.Fprintf(out, "%s\n", res.Body)
		return
	}
	pretty, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "%s\n", res.Body)
		return
	}
	fmt.Fprintf(out, "%s\n", pretty)
}
