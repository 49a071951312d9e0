package seed

import (
	"context"
	"fmt"
	"strings"

	"studiodesk/internal/cache"
	"studiodesk/internal/middleware"
	"studiodesk/internal/models"
	"studiodesk/internal/repository"

	"gorm.io/gorm"
)

// Summary counts what a preset run created.
type Summary struct {
	Preset     string `json:"preset"`
	Categories int    `json:"categories"`
	Users      int    `json:"users"`
	Models     int    `json:"models"`
	Posts      int    `json:"posts"`
	Comments   int    `json:"comments"`
	Votes      int    `json:"votes"`
}

// Seeder applies presets through the repositories so counters and
// constraints behave exactly as they do for API writes.
type Seeder struct {
	db         *gorm.DB
	factory    *Factory
	categories repository.CategoryRepository
	creators   repository.CreatorRepository
	billing    repository.BillingRepository
	votes      repository.VoteRepository
}

// NewSeeder creates a Seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{
		db:         db,
		factory:    NewFactory(db, opts),
		categories: repository.NewCategoryRepository(db),
		creators:   repository.NewCreatorRepository(db),
		billing:    repository.NewBillingRepository(db),
		votes:      repository.NewVoteRepository(db),
	}
}

// clearOrder deletes children before parents.
var clearOrder = []any{
	&models.Vote{},
	&models.Comment{},
	&models.Post{},
	&models.SheetLink{},
	&models.CreatorModel{},
	&models.BillingAccount{},
	&models.Category{},
	&models.User{},
}

// ClearAll hard-deletes all forum and creator data.
func (s *Seeder) ClearAll(ctx context.Context) error {
	middleware.Logger.InfoContext(ctx, "clearing forum and creator data", "tables", len(clearOrder))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range clearOrder {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(m).Error; err != nil {
				return fmt.Errorf("clear %T: %w", m, err)
			}
		}
		return nil
	})
}

// ApplyPreset seeds categories, admins, users, models, posts, comments and
// votes, then drops the forum caches.
func (s *Seeder) ApplyPreset(ctx context.Context, p *Preset) (*Summary, error) {
	sum := &Summary{Preset: p.Name}

	categories, err := s.seedCategories(ctx, p.Categories)
	if err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	sum.Categories = len(categories)

	admins := make(map[string]*models.User, len(p.Admins))
	for _, entry := range p.Admins {
		u, err := s.factory.EnsureUser(ctx, entry, true)
		if err != nil {
			return nil, fmt.Errorf("seed admin %s: %w", entry.Email, err)
		}
		admins[strings.ToLower(entry.Email)] = u
		sum.Users++
	}

	// Every eighth generated user skips username setup.
	var authors, everyone []*models.User
	for _, a := range admins {
		everyone = append(everyone, a)
		if a.HasUsername() {
			authors = append(authors, a)
		}
	}
	for i := 0; i < p.Users; i++ {
		u, err := s.factory.CreateUser(ctx, i%8 != 7)
		if err != nil {
			return nil, fmt.Errorf("seed user: %w", err)
		}
		everyone = append(everyone, u)
		if u.HasUsername() {
			authors = append(authors, u)
		}
		sum.Users++
	}

	modelNames := make([]string, 0, len(p.Models))
	for i, m := range p.Models {
		owner := admins[strings.ToLower(m.Owner)]
		if owner == nil && len(everyone) > 0 {
			owner = everyone[i%len(everyone)]
		}
		if owner == nil {
			return nil, fmt.Errorf("model %s has no owner", m.Name)
		}
		display := m.DisplayName
		if display == "" {
			display = m.Name
		}
		model := &models.CreatorModel{
			Name:        strings.ToLower(m.Name),
			DisplayName: display,
			Bio:         m.Bio,
			OwnerID:     owner.ID,
			Active:      true,
		}
		if err := s.creators.UpsertModel(ctx, model); err != nil {
			return nil, fmt.Errorf("seed model %s: %w", m.Name, err)
		}
		if p.StartingBalanceCents > 0 {
			if _, err := s.billing.Credit(ctx, owner.ID, p.StartingBalanceCents); err != nil {
				return nil, fmt.Errorf("credit %s owner: %w", m.Name, err)
			}
		}
		modelNames = append(modelNames, model.Name)
		sum.Models++
	}

	if p.Posts > 0 && len(authors) == 0 {
		return nil, fmt.Errorf("preset %q has posts but no user with a username", p.Name)
	}
	for i := 0; i < p.Posts; i++ {
		author := authors[s.factory.intn(len(authors))]
		category := &categories[s.factory.intn(len(categories))]
		modelName := ""
		if len(modelNames) > 0 && !s.factory.chance(p.GeneralShare) {
			modelName = modelNames[s.factory.intn(len(modelNames))]
		}

		post := s.factory.BuildPost(author, category, modelName)
		if err := s.factory.CreatePost(ctx, post); err != nil {
			return nil, fmt.Errorf("seed post: %w", err)
		}
		sum.Posts++

		comments, err := s.seedComments(ctx, post, authors, p.CommentsPerPost)
		if err != nil {
			return nil, err
		}
		sum.Comments += len(comments)

		votes, err := s.seedVotes(ctx, models.VoteTargetPost, post.ID, authors, p.VotesPerPost)
		if err != nil {
			return nil, err
		}
		sum.Votes += votes
	}

	cache.InvalidateForum(ctx)
	return sum, nil
}

func (s *Seeder) seedCategories(ctx context.Context, specs []CategorySpec) ([]models.Category, error) {
	for _, cat := range specs {
		color := cat.Color
		if color == "" {
			color = "#64748b"
		}
		c := &models.Category{
			Name:        cat.Name,
			Description: cat.Description,
			Color:       color,
			Active:      true,
			SortOrder:   cat.SortOrder,
		}
		if err := s.categories.Upsert(ctx, c); err != nil {
			return nil, err
		}
	}
	// Re-read so upserted rows carry their stored IDs.
	all, err := s.categories.List(ctx, false)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(specs))
	for _, cat := range specs {
		wanted[cat.Name] = struct{}{}
	}
	out := make([]models.Category, 0, len(specs))
	for _, c := range all {
		if _, ok := wanted[c.Name]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// seedComments adds up to n comments; roughly a third reply to an earlier one.
func (s *Seeder) seedComments(ctx context.Context, post *models.Post, authors []*models.User, n int) ([]*models.Comment, error) {
	if n == 0 {
		return nil, nil
	}
	count := s.factory.intn(n + 1)
	out := make([]*models.Comment, 0, count)
	for i := 0; i < count; i++ {
		var parent *models.Comment
		if len(out) > 0 && s.factory.chance(0.33) {
			parent = out[s.factory.intn(len(out))]
		}
		author := authors[s.factory.intn(len(authors))]
		c, err := s.factory.CreateComment(ctx, author, post, parent)
		if err != nil {
			return nil, fmt.Errorf("seed comment: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// seedVotes casts up to n votes from distinct users, mostly upvotes.
func (s *Seeder) seedVotes(ctx context.Context, targetType string, targetID uint, voters []*models.User, n int) (int, error) {
	if n > len(voters) {
		n = len(voters)
	}
	count := s.factory.intn(n + 1)
	start := s.factory.intn(len(voters))
	for i := 0; i < count; i++ {
		voter := voters[(start+i)%len(voters)]
		value := 1
		if s.factory.chance(0.25) {
			value = -1
		}
		if _, err := s.votes.Toggle(ctx, voter.ID, targetType, targetID, value); err != nil {
			return i, fmt.Errorf("seed vote: %w", err)
		}
	}
	return count, nil
}
