package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"studiodesk/internal/models"
	"studiodesk/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetNames(t *testing.T) {
	assert.Equal(t, []string{"demo", "small"}, PresetNames())
}

func TestLoadPreset(t *testing.T) {
	p, err := LoadPreset("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)
	assert.NotEmpty(t, p.Categories)
	assert.Len(t, p.Admins, 1)
	assert.Equal(t, "aurora", p.Models[0].Name)

	_, err = LoadPreset("missing")
	assert.Error(t, err)
}

func TestLoadPresetFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: custom\nusers: 2\n"), 0o600))

	p, err := LoadPreset(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", p.Name)
	assert.Equal(t, 2, p.Users)
}

func TestParsePresetValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"negative counts", "name: x\nusers: -1\n"},
		{"share out of range", "name: x\ngeneral_share: 1.5\n"},
		{"posts without categories", "name: x\nusers: 1\nposts: 3\n"},
		{"unknown owner", "name: x\nusers: 1\nmodels:\n  - name: m\n    owner: nobody@example.test\n"},
		{"models without users", "name: x\nmodels:\n  - name: m\n"},
		{"bad yaml", "name: [x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePreset([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestApplyPreset(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()

	p, err := LoadPreset("small")
	require.NoError(t, err)

	s := NewSeeder(db, Options{RandSeed: 42, SkipBcrypt: true})
	sum, err := s.ApplyPreset(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, "small", sum.Preset)
	assert.Equal(t, 2, sum.Categories)
	assert.Equal(t, 4, sum.Users)
	assert.Equal(t, 1, sum.Models)
	assert.Equal(t, 6, sum.Posts)

	var posts, comments, votes int64
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	require.NoError(t, db.Model(&models.Comment{}).Count(&comments).Error)
	require.NoError(t, db.Model(&models.Vote{}).Count(&votes).Error)
	assert.Equal(t, int64(sum.Posts), posts)
	assert.Equal(t, int64(sum.Comments), comments)
	assert.Equal(t, int64(sum.Votes), votes)

	// Stored counters agree with the rows created through the repositories.
	var seeded []models.Post
	require.NoError(t, db.Find(&seeded).Error)
	for _, post := range seeded {
		var c, up, down int64
		require.NoError(t, db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&c).Error)
		require.NoError(t, db.Model(&models.Vote{}).Where("target_type = ? AND target_id = ? AND value = 1", "post", post.ID).Count(&up).Error)
		require.NoError(t, db.Model(&models.Vote{}).Where("target_type = ? AND target_id = ? AND value = -1", "post", post.ID).Count(&down).Error)
		assert.Equal(t, int(c), post.CommentCount)
		assert.Equal(t, int(up), post.Upvotes)
		assert.Equal(t, int(down), post.Downvotes)
	}

	var model models.CreatorModel
	require.NoError(t, db.Where("name = ?", "aurora").First(&model).Error)
	var account models.BillingAccount
	require.NoError(t, db.Where("user_id = ?", model.OwnerID).First(&account).Error)
	assert.Equal(t, int64(500), account.BalanceCents)
}

func TestApplyPresetIsRepeatableAfterClear(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()

	p, err := LoadPreset("small")
	require.NoError(t, err)

	_, err = NewSeeder(db, Options{RandSeed: 1, SkipBcrypt: true}).ApplyPreset(ctx, p)
	require.NoError(t, err)

	s := NewSeeder(db, Options{RandSeed: 2, SkipBcrypt: true})
	require.NoError(t, s.ClearAll(ctx))

	var users int64
	require.NoError(t, db.Unscoped().Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users)

	sum, err := s.ApplyPreset(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Posts)
}

func TestEnsureUserPromotesExisting(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	existing := testutil.CreateUser(t, db, "boss@example.test", "boss")

	f := NewFactory(db, Options{RandSeed: 3, SkipBcrypt: true})
	u, err := f.EnsureUser(ctx, UserSpec{Email: "Boss@Example.test"}, true)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, u.ID)
	assert.True(t, u.IsAdmin)

	_, err = f.EnsureUser(ctx, UserSpec{Email: "bad@example.test", Username: "x!"}, false)
	assert.Error(t, err)
}

func TestFactoryUsernamesAreValidAndUnique(t *testing.T) {
	f := NewFactory(nil, Options{RandSeed: 7})
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		name := f.username()
		assert.Regexp(t, `^[a-z0-9][a-z0-9_]{1,18}[a-z0-9]$`, name)
		assert.False(t, seen[name], name)
		seen[name] = true
	}
}
