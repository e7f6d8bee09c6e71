package collection

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/routing"
	"go.uber.org/zap"
)

// CreateRoute validates and stores a route. Neighborhood names are trimmed
// and de-duplicated by their normalized form.
func (g *Generator) CreateRoute(ctx context.Context, r *models.Route) (*models.Route, error) {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return nil, fmt.Errorf("%w: route name is required", models.ErrInvalidParameters)
	}
	seen := make(map[string]bool)
	var hoods []string
	for _, n := range r.Neighborhoods {
		key := routing.Normalize(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		hoods = append(hoods, strings.TrimSpace(n))
	}
	if len(hoods) == 0 {
		return nil, fmt.Errorf("%w: route needs at least one neighborhood", models.ErrInvalidParameters)
	}
	r.Neighborhoods = hoods
	r.ID = uuid.New()
	r.Active = true
	if err := g.storage.CreateRoute(ctx, r); err != nil {
		return nil, err
	}
	g.logger.Info("route created", zap.String("op", "collection.CreateRoute"),
		zap.String("route", r.Name), zap.Int("neighborhoods", len(hoods)))
	return r, nil
}

func (g *Generator) ListRoutes(ctx context.Context) ([]*models.Route, error) {
	return g.storage.ListRoutes(ctx)
}

// CreateCollector validates and stores a collector. Every route id must exist.
func (g *Generator) CreateCollector(ctx context.Context, c *models.Collector) (*models.Collector, error) {
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return nil, fmt.Errorf("%w: first and last name are required", models.ErrInvalidParameters)
	}
	if strings.TrimSpace(c.DocumentNumber) == "" {
		return nil, fmt.Errorf("%w: document number is required", models.ErrInvalidParameters)
	}
	if c.CommissionPercent.IsNegative() || c.DailyGoal.IsNegative() {
		return nil, fmt.Errorf("%w: commission and daily goal cannot be negative", models.ErrInvalidParameters)
	}
	if len(c.RouteIDs) > 0 {
		routes, err := g.storage.ListRoutes(ctx)
		if err != nil {
			return nil, err
		}
		known := make(map[uuid.UUID]bool, len(routes))
		for _, r := range routes {
			known[r.ID] = true
		}
		for _, id := range c.RouteIDs {
			if !known[id] {
				return nil, fmt.Errorf("%w: route %s", models.ErrNotFound, id)
			}
		}
	}
	c.ID = uuid.New()
	c.Active = true
	if c.HiredOn.IsZero() {
		c.HiredOn = models.DateOf(g.now())
	}
	c.HiredOn = models.DateOf(c.HiredOn)
	if err := g.storage.CreateCollector(ctx, c); err != nil {
		return nil, err
	}
	g.logger.Info("collector created", zap.String("op", "collection.CreateCollector"),
		zap.String("collector", c.FullName()), zap.Int("routes", len(c.RouteIDs)))
	return c, nil
}

func (g *Generator) ListCollectors(ctx context.Context) ([]*models.Collector, error) {
	return g.storage.ListCollectors(ctx)
}
