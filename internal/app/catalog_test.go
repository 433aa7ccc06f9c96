package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/infra/store"
)

const sampleCatalog = `
[[users]]
id = "ada"
name = "Ada"

[[courses]]
id = "go-basics"
title = "Go Basics"
points_per_completion = 100

  [[courses.activities]]
  id = "hello"
  title = "Hello, world"
  points = 10
  duration_minutes = 15

  [[courses.activities]]
  title = "Variables"
  points = 10
  duration_minutes = 20
  required = false

[[courses]]
title = "Archived"
active = false

[[badges]]
id = "marathon"
name = "Marathon"
kind = "streak_length"
threshold = 30
`

func TestParseCatalog_Basic(t *testing.T) {
	c, err := ParseCatalog(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog() error: %v", err)
	}

	require.Len(t, c.Users, 1)
	require.Len(t, c.Courses, 2)
	require.Len(t, c.Activities, 2)
	require.Len(t, c.Badges, 1)

	assert.True(t, c.Courses[0].IsActive)
	assert.False(t, c.Courses[1].IsActive)
	assert.NotEmpty(t, c.Courses[1].ID, "missing course id is generated")

	hello, vars := c.Activities[0], c.Activities[1]
	assert.Equal(t, "go-basics", hello.CourseID)
	assert.Equal(t, 0, hello.Order)
	assert.Equal(t, 1, vars.Order, "order defaults to file position")
	assert.True(t, hello.IsRequired)
	assert.False(t, vars.IsRequired)
	assert.NotEmpty(t, vars.ID)

	assert.Equal(t, domain.StreakLength{N: 30}, c.Badges[0].Criteria)
}

func TestParseCatalog_DefaultBadges(t *testing.T) {
	c, err := ParseCatalog(strings.NewReader(`[[users]]
id = "u1"
`))
	require.NoError(t, err)
	assert.NotEmpty(t, c.Badges)
}

func TestParseCatalog_Errors(t *testing.T) {
	cases := map[string]string{
		"syntax":       `[[users]`,
		"unknown key":  "[[users]]\nid = \"u\"\nemail = \"x\"\n",
		"missing user": "[[users]]\nname = \"nobody\"\n",
		"course title": "[[courses]]\nid = \"c\"\n",
		"bad criteria": "[[badges]]\nid = \"b\"\nname = \"B\"\nkind = \"completion_count\"\n",
		"unknown kind": "[[badges]]\nid = \"b\"\nname = \"B\"\nkind = \"karma\"\nthreshold = 3\n",
		"order clash":  "[[courses]]\ntitle = \"C\"\n[[courses.activities]]\ntitle = \"A\"\norder = 1\n[[courses.activities]]\ntitle = \"B\"\norder = 1\n",
		"negative pts": "[[courses]]\ntitle = \"C\"\n[[courses.activities]]\ntitle = \"A\"\npoints = -1\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog(strings.NewReader(input))
			if err == nil {
				t.Errorf("ParseCatalog(%s) should fail", name)
			}
		})
	}
}

func TestSeed_WritesAndIsRepeatable(t *testing.T) {
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	c, err := ParseCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	rep, err := Seed(ctx, db, c)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Users: 1, Courses: 2, Activities: 2, Badges: 1}, rep)

	_, err = Seed(ctx, db, c)
	require.NoError(t, err, "seeding twice updates in place")

	acts, err := db.ListCourseActivities(ctx, "go-basics")
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "hello", acts[0].ID)

	badges, err := db.ListActiveBadges(ctx)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, "marathon", badges[0].ID)
}
