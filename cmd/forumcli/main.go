// Command forumcli drives the studiodesk client packages against a running
// API server: browse and vote on forum posts, write through the username
// gate, follow forum events and run the sheet generation wizard.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"studiodesk/internal/apiclient"
	"studiodesk/internal/forumquery"
	"studiodesk/internal/middleware"
	"studiodesk/internal/models"
	"studiodesk/internal/notifications"
	"studiodesk/internal/sheetwizard"
	"studiodesk/internal/usernamegate"
	"studiodesk/internal/votecache"
)

func usage() {
	fmt.Println("Usage: forumcli [-api URL] [-email E] [-password P] <command> [args]")
	fmt.Println("  posts [-sort hot|new|top] [-page N] [-category ID] [-model NAME] [-search TEXT]")
	fmt.Println("  show <post_id>")
	fmt.Println("  post -title T -body B [-category ID] [-model NAME]")
	fmt.Println("  comment <post_id> <body>")
	fmt.Println("  vote <post|comment> <id> <up|down>")
	fmt.Println("  username <name>")
	fmt.Println("  balance [-count N]")
	fmt.Println("  links <model>")
	fmt.Println("  generate <model> [-title T]")
	fmt.Println("  watch")
	os.Exit(1)
}

// app wires the client packages the way an interactive frontend would.
type app struct {
	client *apiclient.Client
	query  *forumquery.Layer
	votes  *votecache.Cache
	gate   *usernamegate.Gate
	logger *slog.Logger
	in     *bufio.Reader
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	apiURL := flag.String("api", envOr("STUDIODESK_API", "http://localhost:8375"), "API base URL")
	email := flag.String("email", os.Getenv("STUDIODESK_EMAIL"), "login email")
	password := flag.String("password", os.Getenv("STUDIODESK_PASSWORD"), "login password")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := middleware.NewLogger(os.Stderr, "development", level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(*apiURL)
	client.Logger = logger
	if *email != "" {
		user, err := client.Login(ctx, *email, *password)
		if err != nil {
			log.Fatalf("Login failed: %v", err)
		}
		logger.Debug("logged in", slog.Uint64("user_id", uint64(user.ID)))
	}

	query := forumquery.New(client, forumquery.NewCache(), logger)
	a := &app{
		client: client,
		query:  query,
		votes:  votecache.New(client, query, logger),
		gate: usernamegate.New(client,
			usernamegate.WithLogger(logger),
			usernamegate.WithPrompt(func() { fmt.Println("A username is required before writing to the forum.") }),
		),
		logger: logger,
		in:     bufio.NewReader(os.Stdin),
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	case "posts":
		err = a.listPosts(ctx, args)
	case "show":
		err = a.showPost(ctx, args)
	case "post":
		err = a.createPost(ctx, args)
	case "comment":
		err = a.createComment(ctx, args)
	case "vote":
		err = a.vote(ctx, args)
	case "username":
		if len(args) < 1 {
			usage()
		}
		var status *models.UsernameStatus
		if status, err = a.gate.SetUsername(ctx, args[0]); err == nil {
			fmt.Printf("✅ You are now @%s\n", status.Username)
		}
	case "balance":
		err = a.balance(ctx, args)
	case "links":
		err = a.links(ctx, args)
	case "generate":
		err = a.generate(ctx, args)
	case "watch":
		err = a.watch(ctx)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		usage()
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, sheetwizard.ErrCancelled) {
		log.Fatalf("❌ %s: %v", cmd, err)
	}
}

func parseUint(s, what string) uint {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		log.Fatalf("Invalid %s %q", what, s)
	}
	return uint(id)
}

func (a *app) listPosts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("posts", flag.ExitOnError)
	sort := fs.String("sort", models.SortHot, "hot, new or top")
	page := fs.Int("page", 1, "page number")
	category := fs.Uint("category", 0, "category ID")
	model := fs.String("model", "", "creator model name")
	general := fs.Bool("general", false, "only posts without a model")
	search := fs.String("search", "", "search text")
	_ = fs.Parse(args)

	filters := models.PostFilters{
		ModelName: *model, GeneralOnly: *general, Sort: *sort, Page: *page, Search: *search,
	}
	if *category > 0 {
		c := *category
		filters.CategoryID = &c
	}

	result, err := a.query.GetPosts(ctx, filters)
	if err != nil {
		return err
	}
	fmt.Printf("Page %d (%d posts total)\n", result.Page, result.Total)
	for _, p := range result.Posts {
		a.votes.Observe(votecache.ItemKey(models.VoteTargetPost, p.ID), p.UserVote)
		marker := " "
		if p.Pinned {
			marker = "📌"
		}
		author := ""
		if p.Author != nil {
			author = "@" + p.Author.Username
		}
		fmt.Printf("%s #%-5d %+4d  💬%-3d %s %s\n", marker, p.ID, p.Score(), p.CommentCount, p.Title, author)
	}
	if result.HasMore {
		fmt.Printf("… more on page %d\n", result.Page+1)
	}
	return nil
}

func (a *app) showPost(ctx context.Context, args []string) error {
	if len(args) < 1 {
		usage()
	}
	post, err := a.query.GetPost(ctx, parseUint(args[0], "post ID"))
	if err != nil {
		return err
	}
	a.votes.ObservePost(post)

	fmt.Printf("#%d %s  (+%d/-%d)\n\n%s\n\n", post.ID, post.Title, post.Upvotes, post.Downvotes, post.Body)
	for _, c := range post.Comments {
		indent := ""
		if c.ParentID != nil {
			indent = "    "
		}
		author := "?"
		if c.Author != nil {
			author = c.Author.Username
		}
		fmt.Printf("%s[%d] @%s: %s\n", indent, c.ID, author, c.Body)
	}
	return nil
}

// gated runs a forum write through the username gate, asking for a
// username on stdin when one is required.
func (a *app) gated(ctx context.Context, action usernamegate.Action) error {
	err := a.gate.Do(ctx, action)
	if !errors.Is(err, usernamegate.ErrUsernameRequired) {
		return err
	}

	for {
		fmt.Print("Username (3-20 chars, a-z 0-9 _): ")
		line, readErr := a.in.ReadString('\n')
		if readErr != nil {
			a.gate.Dismiss()
			return err
		}
		_, setErr := a.gate.SetUsername(ctx, strings.TrimSpace(line))
		switch {
		case setErr == nil:
			return nil
		case models.ErrorCode(setErr) == models.CodeValidation,
			apiclient.IsCode(setErr, models.CodeConflict):
			fmt.Printf("⚠️  %v\n", setErr)
		default:
			return setErr
		}
	}
}

func (a *app) createPost(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	title := fs.String("title", "", "post title")
	body := fs.String("body", "", "post body")
	category := fs.Uint("category", 0, "category ID")
	model := fs.String("model", "", "creator model name")
	_ = fs.Parse(args)

	in := apiclient.CreatePostInput{Title: *title, Body: *body, ModelName: *model}
	if *category > 0 {
		c := *category
		in.CategoryID = &c
	}
	return a.gated(ctx, func(ctx context.Context) error {
		post, err := a.query.CreatePost(ctx, in)
		if err == nil {
			fmt.Printf("✅ Created post #%d\n", post.ID)
		}
		return err
	})
}

func (a *app) createComment(ctx context.Context, args []string) error {
	if len(args) < 2 {
		usage()
	}
	in := apiclient.CreateCommentInput{
		PostID: parseUint(args[0], "post ID"),
		Body:   strings.Join(args[1:], " "),
	}
	return a.gated(ctx, func(ctx context.Context) error {
		comment, err := a.query.CreateComment(ctx, in)
		if err == nil {
			fmt.Printf("✅ Comment #%d added to post #%d\n", comment.ID, comment.PostID)
		}
		return err
	})
}

func (a *app) vote(ctx context.Context, args []string) error {
	if len(args) < 3 {
		usage()
	}
	kind := args[0]
	id := parseUint(args[1], "target ID")
	dir, err := votecache.ParseDirection(args[2])
	if err != nil {
		return err
	}
	if kind == models.VoteTargetPost {
		// Seed the cache with the server's view so the toggle prediction is right.
		post, err := a.query.GetPost(ctx, id)
		if err != nil {
			return err
		}
		a.votes.ObservePost(post)
	}

	item := votecache.ItemKey(kind, id)
	return a.gated(ctx, func(ctx context.Context) error {
		got, err := a.votes.Vote(ctx, item, dir, kind, id)
		if err == nil {
			fmt.Printf("✅ Your vote on %s is now %s\n", item, got)
		}
		return err
	})
}

func (a *app) balance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	count := fs.Int("count", 1, "number of generations")
	_ = fs.Parse(args)

	check, err := a.client.CheckBalance(ctx, *count)
	if err != nil {
		return err
	}
	status := "✅ sufficient"
	if !check.Sufficient {
		status = "❌ insufficient"
	}
	fmt.Printf("%s: %d of %d %s cents\n", status, check.BalanceCents, check.RequiredCents, check.Currency)
	return nil
}

func (a *app) links(ctx context.Context, args []string) error {
	if len(args) < 1 {
		usage()
	}
	links, err := a.client.SheetLinks(ctx, args[0])
	if err != nil {
		return err
	}
	for _, l := range links {
		fmt.Printf("%s  %s  %s\n", l.CreatedAt.Format(time.DateOnly), l.Title, l.SheetURL)
	}
	return nil
}

func (a *app) generate(ctx context.Context, args []string) error {
	if len(args) < 1 {
		usage()
	}
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	title := fs.String("title", "", "sheet title")
	_ = fs.Parse(args[1:])

	w := sheetwizard.New(sheetwizard.ClientOpener(a.client),
		sheetwizard.WithLogger(a.logger),
		sheetwizard.WithBalanceCheck(func(ctx context.Context) (*models.BalanceCheck, error) {
			return a.client.CheckBalance(ctx, 1)
		}),
		sheetwizard.WithNotifier(func(n sheetwizard.Notification) {
			icon := "✅"
			if n.Level == sheetwizard.LevelError {
				icon = "❌"
			}
			fmt.Printf("%s %s\n", icon, n.Message)
		}),
	)
	if err := w.SelectModel(args[0]); err != nil {
		return err
	}
	if err := w.Configure(*title); err != nil {
		return err
	}

	// Ctrl-C dismisses the wizard and closes the stream.
	stop := context.AfterFunc(ctx, w.Cancel)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- w.Generate(context.WithoutCancel(ctx)) }()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case err := <-done:
			snap := w.Snapshot()
			if err == nil && snap.Link != nil {
				fmt.Printf("🔗 %s\n", snap.Link.SheetURL)
			}
			return err
		case <-ticker.C:
			snap := w.Snapshot()
			if snap.StepIndex != last {
				last = snap.StepIndex
				fmt.Printf("… %3d%%  %v\n", snap.Percent, snap.Completed)
			}
		}
	}
}

func (a *app) watch(ctx context.Context) error {
	fmt.Println("Listening for forum events (Ctrl-C to stop)…")
	return a.client.SubscribeForumEvents(ctx, func(ev notifications.Event) {
		fmt.Printf("[%s] %s %s\n", time.Now().Format(time.TimeOnly), ev.Type, string(ev.Payload))
	})
}
