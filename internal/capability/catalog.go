// Package capability is the local catalog of things nudge can offer. It
// supplies the installed-capability names and the keyword search used by the
// focus detector.
package capability

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/actionsum/nudge/internal/database"
	"github.com/actionsum/nudge/internal/models"
)

// Catalog is backed by the capabilities table.
type Catalog struct {
	db *database.DB
}

func New(db *database.DB) *Catalog {
	return &Catalog{db: db}
}

// Add inserts or replaces a capability by name.
func (c *Catalog) Add(ctx context.Context, item *models.Capability) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return errors.New("capability name is required")
	}
	item.Keywords = normalizeKeywords(item.Keywords)

	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "keywords", "installed", "updated_at", "deleted_at"}),
	}).Create(item).Error
	if err != nil {
		return errors.Wrapf(err, "failed to add capability %s", item.Name)
	}
	return nil
}

// List returns every capability ordered by name.
func (c *Catalog) List(ctx context.Context) ([]models.Capability, error) {
	var caps []models.Capability
	if err := c.db.WithContext(ctx).Order("name ASC").Find(&caps).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list capabilities")
	}
	return caps, nil
}

// Remove deletes a capability by name.
func (c *Catalog) Remove(ctx context.Context, name string) error {
	result := c.db.WithContext(ctx).Unscoped().Where("name = ?", name).Delete(&models.Capability{})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to remove capability %s", name)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Clear removes the whole catalog.
func (c *Catalog) Clear(ctx context.Context) error {
	if err := c.db.WithContext(ctx).Exec("DELETE FROM capabilities").Error; err != nil {
		return errors.Wrap(err, "failed to clear capabilities")
	}
	return nil
}

// Names returns the installed capability names. A failing query yields
// none.
func (c *Catalog) Names(ctx context.Context) []string {
	var names []string
	err := c.db.WithContext(ctx).Model(&models.Capability{}).
		Where("installed = ?", true).
		Order("name ASC").
		Pluck("name", &names).Error
	if err != nil {
		log.Printf("Failed to list installed capabilities: %v", err)
		return nil
	}
	return names
}

// Search returns capabilities whose name, description or keywords contain
// any of the keywords, best match first. It never fails: errors and
// timeouts yield no matches.
func (c *Catalog) Search(ctx context.Context, keywords []string, limit int) []models.CapabilityMatch {
	var terms []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			terms = append(terms, k)
		}
	}
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	clauses := make([]string, 0, len(terms))
	args := make([]interface{}, 0, 3*len(terms))
	for _, t := range terms {
		like := "%" + likeEscaper.Replace(t) + "%"
		clauses = append(clauses, `LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(keywords) LIKE ? ESCAPE '\'`)
		args = append(args, like, like, like)
	}

	var caps []models.Capability
	err := c.db.WithContext(ctx).
		Where(strings.Join(clauses, " OR "), args...).
		Find(&caps).Error
	if err != nil {
		log.Printf("Capability search failed: %v", err)
		return nil
	}

	ranked := rank(caps, terms)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	matches := make([]models.CapabilityMatch, len(ranked))
	for i, item := range ranked {
		matches[i] = models.CapabilityMatch{Name: item.Name, Description: item.Description}
	}
	return matches
}

// likeEscaper makes LIKE wildcards in search terms match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// rank orders by the number of terms hit, then by name.
func rank(caps []models.Capability, terms []string) []models.Capability {
	hits := make(map[string]int, len(caps))
	for _, item := range caps {
		hay := strings.ToLower(item.Name + " " + item.Description + " " + item.Keywords)
		for _, t := range terms {
			if strings.Contains(hay, t) {
				hits[item.Name]++
			}
		}
	}

	out := append([]models.Capability(nil), caps...)
	sort.SliceStable(out, func(i, j int) bool {
		if hits[out[i].Name] != hits[out[j].Name] {
			return hits[out[i].Name] > hits[out[j].Name]
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func normalizeKeywords(s string) string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return strings.Join(out, ",")
}
