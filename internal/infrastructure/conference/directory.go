package conference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

type file struct {
	Conferences []domain.Conference `yaml:"conferences"`
}

// Directory serves conference metadata loaded once from a YAML file.
type Directory struct {
	byID map[int64]domain.Conference
}

func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conferences file: %w", err)
	}
	return Parse(bytes.NewReader(raw))
}

func Parse(r io.Reader) (*Directory, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode conferences: %w", err)
	}

	d := &Directory{byID: make(map[int64]domain.Conference, len(doc.Conferences))}
	for i, c := range doc.Conferences {
		c.Slug = strings.TrimSpace(c.Slug)
		switch {
		case c.ID <= 0:
			return nil, fmt.Errorf("conference #%d: id must be positive", i+1)
		case c.Slug == "":
			return nil, fmt.Errorf("conference %d: slug is required", c.ID)
		case !c.NotificationDate.IsZero() && !c.RegistrationDeadline.IsZero() && c.NotificationDate.Before(c.RegistrationDeadline):
			return nil, fmt.Errorf("conference %d: notification_date precedes registration_deadline", c.ID)
		}
		if _, dup := d.byID[c.ID]; dup {
			return nil, fmt.Errorf("conference %d: duplicate id", c.ID)
		}
		d.byID[c.ID] = c
	}
	return d, nil
}

func (d *Directory) Get(_ context.Context, id int64) (*domain.Conference, error) {
	c, ok := d.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get conference", fmt.Errorf("id=%d", id))
	}
	return &c, nil
}

func (d *Directory) Len() int {
	return len(d.byID)
}
