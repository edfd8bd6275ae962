package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type rootOptions struct {
	server  string
	token   string
	timeout time.Duration
}

func (o *rootOptions) client() *Client {
	return NewClient(o.server, o.token, o.timeout)
}

// passwordReader reads a password without echo. Replaced in tests.
var passwordReader = func(prompt string, out io.Writer) (string, error) {
	fmt.Fprint(out, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// errRequestFailed makes the process exit with failure once the response is printed.
var errRequestFailed = errors.New("request failed")

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "libraryctl",
		Short:         "Command line client of the library lending api",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8000", "api server base url")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LIBRARYCTL_TOKEN"), "bearer access token")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "http requests timeout")

	root.AddCommand(
		newDemoCmd(opts),
		newSignupCmd(opts),
		newLoginCmd(opts),
		newBooksCmd(opts),
		newBorrowCmd(opts),
		newLoansCmd(opts),
	)
	return root
}

// report prints the result and turns a failed call into an error.
func report(cmd *cobra.Command, step string, res *Result) error {
	printResult(cmd.OutOrStdout(), step, res)
	if !res.OK() {
		return errRequestFailed
	}
	return nil
}

func newDemoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the signup, login, create, search, borrow and loans sequence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), opts.client(), cmd.OutOrStdout())
		},
	}
}

func newSignupCmd(opts *rootOptions) *cobra.Command {
	var p signupPayload
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.Password == "" {
				var err error
				if p.Password, err = passwordReader("Password: ", cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			res, err := opts.client().Signup(cmd.Context(), p)
			if err != nil {
				return err
			}
			return report(cmd, "signup", res)
		},
	}
	cmd.Flags().StringVar(&p.Username, "username", "", "user name")
	cmd.Flags().StringVar(&p.Email, "email", "", "email address")
	cmd.Flags().StringVar(&p.FullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&p.Password, "password", "", "password, prompted when empty")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("full-name")
	return cmd
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var p loginPayload
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Get an access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.Password == "" {
				var err error
				if p.Password, err = passwordReader("Password: ", cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			res, _, err := opts.client().Login(cmd.Context(), p)
			if err != nil {
				return err
			}
			return report(cmd, "login", res)
		},
	}
	cmd.Flags().StringVar(&p.Username, "username", "", "user name")
	cmd.Flags().StringVar(&p.Password, "password", "", "password, prompted when empty")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newBooksCmd(opts *rootOptions) *cobra.Command {
	books := &cobra.Command{
		Use:   "books",
		Short: "Manage the books catalog",
	}

	var p bookPayload
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a book to the catalog (admin)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.client().CreateBook(cmd.Context(), p)
			if err != nil {
				return err
			}
			return report(cmd, "create book", res)
		},
	}
	create.Flags().StringVar(&p.Title, "title", "", "book title")
	create.Flags().StringVar(&p.Author, "author", "", "book author")
	create.Flags().StringVar(&p.ISBN, "isbn", "", "book isbn")
	create.Flags().StringVar(&p.Category, "category", "", "book category")
	create.Flags().IntVar(&p.TotalCopies, "copies", 1, "number of copies")
	for _, name := range []string{"title", "author", "isbn", "category"} {
		_ = create.MarkFlagRequired(name)
	}

	var category string
	var available bool
	search := &cobra.Command{
		Use:   "search",
		Short: "Search books by category and availability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var categoryFilter *string
			if cmd.Flags().Changed("category") {
				categoryFilter = &category
			}
			var availability *bool
			if cmd.Flags().Changed("available") {
				availability = &available
			}
			res, err := opts.client().SearchBooks(cmd.Context(), categoryFilter, availability)
			if err != nil {
				return err
			}
			return report(cmd, "search books", res)
		},
	}
	search.Flags().StringVar(&category, "category", "", "exact category")
	search.Flags().BoolVar(&available, "available", false, "only books with copies left, or exhausted ones when false")

	books.AddCommand(create, search)
	return books
}

func newBorrowCmd(opts *rootOptions) *cobra.Command {
	var p borrowPayload
	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Borrow one copy of a book",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.client().Borrow(cmd.Context(), p)
			if err != nil {
				return err
			}
			return report(cmd, "borrow", res)
		},
	}
	cmd.Flags().Int64Var(&p.BookID, "book", 0, "book id")
	cmd.Flags().Int64Var(&p.UserID, "user", 0, "borrower id, must be the token owner")
	_ = cmd.MarkFlagRequired("book")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newLoansCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "loans",
		Short: "List the token owner loans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.client().MyLoans(cmd.Context())
			if err != nil {
				return err
			}
			return report(cmd, "my loans", res)
		},
	}
}
