// Package app provides application-layer orchestration services.
// It wires domain logic with infrastructure, never the reverse.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/tutu-network/learnquest/internal/app/engagement"
	"github.com/tutu-network/learnquest/internal/domain"
)

// CatalogWriter is the write side needed to load a catalogue.
type CatalogWriter interface {
	UpsertUser(ctx context.Context, u domain.User) error
	UpsertCourse(ctx context.Context, c domain.Course) error
	UpsertActivity(ctx context.Context, a domain.Activity) error
	UpsertBadge(ctx context.Context, b domain.Badge) error
}

// CatalogFile is the TOML layout of a catalogue file:
//
//	[[users]]
//	id = "ada"
//	name = "Ada"
//
//	[[courses]]
//	id = "go-basics"
//	title = "Go Basics"
//	points_per_completion = 100
//
//	  [[courses.activities]]
//	  title = "Hello, world"
//	  points = 10
//	  duration_minutes = 15
//
//	[[badges]]
//	id = "marathon"
//	name = "Marathon"
//	kind = "streak_length"
//	threshold = 30
type CatalogFile struct {
	Users   []UserSpec   `toml:"users"`
	Courses []CourseSpec `toml:"courses"`
	Badges  []BadgeSpec  `toml:"badges"`
}

// UserSpec declares a learner.
type UserSpec struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// CourseSpec declares a course and its ordered activities.
type CourseSpec struct {
	ID                  string         `toml:"id"`
	Title               string         `toml:"title"`
	PointsPerCompletion int64          `toml:"points_per_completion"`
	Active              *bool          `toml:"active"`
	Activities          []ActivitySpec `toml:"activities"`
}

// ActivitySpec declares one course step. Order defaults to the position in
// the file.
type ActivitySpec struct {
	ID              string `toml:"id"`
	Title           string `toml:"title"`
	Points          int64  `toml:"points"`
	DurationMinutes int    `toml:"duration_minutes"`
	Order           *int   `toml:"order"`
	Required        *bool  `toml:"required"`
	Active          *bool  `toml:"active"`
}

// BadgeSpec declares a badge with flattened criteria columns.
type BadgeSpec struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Icon        string `toml:"icon"`
	Color       string `toml:"color"`
	Kind        string `toml:"kind"`
	Threshold   int64  `toml:"threshold"`
	Tag         string `toml:"tag"`
	Active      *bool  `toml:"active"`
}

// Catalog is a validated catalogue ready to be written.
type Catalog struct {
	Users      []domain.User
	Courses    []domain.Course
	Activities []domain.Activity
	Badges     []domain.Badge
}

// SeedReport counts the records written by Seed.
type SeedReport struct {
	Users      int `json:"users"`
	Courses    int `json:"courses"`
	Activities int `json:"activities"`
	Badges     int `json:"badges"`
}

// ParseCatalog decodes and validates a TOML catalogue. Missing IDs are
// generated. A file without badges gets the default badge set.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var f CatalogFile
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown catalogue key %q", undecoded[0].String())
	}
	return f.Build()
}

// Build validates the file and converts it to domain records.
func (f CatalogFile) Build() (*Catalog, error) {
	c := &Catalog{}

	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("users[%d]: id is required", i)
		}
		c.Users = append(c.Users, domain.User{ID: u.ID, Name: u.Name})
	}

	for i, cs := range f.Courses {
		if cs.Title == "" {
			return nil, fmt.Errorf("courses[%d]: title is required", i)
		}
		if cs.PointsPerCompletion < 0 {
			return nil, fmt.Errorf("course %q: negative points_per_completion", cs.Title)
		}
		id := orNewID(cs.ID)
		c.Courses = append(c.Courses, domain.Course{
			ID:                  id,
			Title:               cs.Title,
			PointsPerCompletion: cs.PointsPerCompletion,
			IsActive:            boolOr(cs.Active, true),
		})

		orders := make(map[int]string, len(cs.Activities))
		for j, as := range cs.Activities {
			if as.Title == "" {
				return nil, fmt.Errorf("course %q activities[%d]: title is required", cs.Title, j)
			}
			if as.Points < 0 || as.DurationMinutes < 0 {
				return nil, fmt.Errorf("activity %q: points and duration must not be negative", as.Title)
			}
			order := j
			if as.Order != nil {
				order = *as.Order
			}
			if prev, dup := orders[order]; dup {
				return nil, fmt.Errorf("course %q: activities %q and %q share order %d", cs.Title, prev, as.Title, order)
			}
			orders[order] = as.Title

			c.Activities = append(c.Activities, domain.Activity{
				ID:              orNewID(as.ID),
				CourseID:        id,
				Title:           as.Title,
				PointsValue:     as.Points,
				DurationMinutes: as.DurationMinutes,
				Order:           order,
				IsRequired:      boolOr(as.Required, true),
				IsActive:        boolOr(as.Active, true),
			})
		}
	}

	if len(f.Badges) == 0 {
		c.Badges = engagement.DefaultBadges()
		return c, nil
	}
	for i, bs := range f.Badges {
		if bs.ID == "" || bs.Name == "" {
			return nil, fmt.Errorf("badges[%d]: id and name are required", i)
		}
		criteria, err := domain.ParseCriteria(bs.Kind, bs.Threshold, bs.Tag)
		if err != nil {
			return nil, fmt.Errorf("badge %q: %w", bs.ID, err)
		}
		c.Badges = append(c.Badges, domain.Badge{
			ID:          bs.ID,
			Name:        bs.Name,
			Description: bs.Description,
			Icon:        bs.Icon,
			Color:       bs.Color,
			Criteria:    criteria,
			IsActive:    boolOr(bs.Active, true),
		})
	}
	return c, nil
}

// Seed writes the catalogue. Existing records are updated in place; user
// progression is never touched.
func Seed(ctx context.Context, w CatalogWriter, c *Catalog) (SeedReport, error) {
	var rep SeedReport
	for _, u := range c.Users {
		if err := w.UpsertUser(ctx, u); err != nil {
			return rep, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		rep.Users++
	}
	for _, co := range c.Courses {
		if err := w.UpsertCourse(ctx, co); err != nil {
			return rep, fmt.Errorf("seed course %s: %w", co.ID, err)
		}
		rep.Courses++
	}
	for _, a := range c.Activities {
		if err := w.UpsertActivity(ctx, a); err != nil {
			return rep, fmt.Errorf("seed activity %s: %w", a.ID, err)
		}
		rep.Activities++
	}
	for _, b := range c.Badges {
		if err := w.UpsertBadge(ctx, b); err != nil {
			return rep, fmt.Errorf("seed badge %s: %w", b.ID, err)
		}
		rep.Badges++
	}
	return rep, nil
}

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
