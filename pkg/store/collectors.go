package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/routing"
)

// CreateRoute inserts a route. Neighborhoods are stored as a comma separated list.
func (s *SQLStore) CreateRoute(ctx context.Context, r *models.Route) error {
	_, err := s.exec(ctx,
		`INSERT INTO routes (id, name, zone, neighborhoods, active) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Zone, strings.Join(r.Neighborhoods, ", "), r.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: route %q already exists", models.ErrInvalidParameters, r.Name)
		}
		return fmt.Errorf("failed to create route: %w", err)
	}
	return nil
}

// ListRoutes retrieves every route ordered by name.
func (s *SQLStore) ListRoutes(ctx context.Context) ([]*models.Route, error) {
	rows, err := s.query(ctx, `SELECT id, name, zone, neighborhoods, active FROM routes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	var routes []*models.Route
	for rows.Next() {
		var r models.Route
		var list string
		if err := rows.Scan(&r.ID, &r.Name, &r.Zone, &list, &r.Active); err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}
		r.Neighborhoods = routing.SplitNeighborhoods(list)
		routes = append(routes, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for routes: %w", err)
	}
	return routes, nil
}

// CreateCollector inserts a collector and its route assignments.
func (s *SQLStore) CreateCollector(ctx context.Context, c *models.Collector) error {
	return s.RunInTx(ctx, func(tx Storage) error {
		t := tx.(*SQLStore)
		_, err := t.exec(ctx,
			`INSERT INTO collectors (id, first_name, last_name, document_number, phone, email, active, commission_percent, daily_goal, hired_on)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.FirstName, c.LastName, c.DocumentNumber, c.Phone, c.Email, c.Active, c.CommissionPercent, c.DailyGoal,
			models.DateOf(c.HiredOn),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: document %s already registered", models.ErrInvalidParameters, c.DocumentNumber)
			}
			return fmt.Errorf("failed to create collector: %w", err)
		}
		for _, rid := range c.RouteIDs {
			if _, err := t.exec(ctx, `INSERT INTO collector_routes (collector_id, route_id) VALUES (?, ?)`, c.ID, rid); err != nil {
				return fmt.Errorf("failed to assign route %s: %w", rid, err)
			}
		}
		return nil
	})
}

const collectorColumns = `id, first_name, last_name, document_number, phone, email, active, commission_percent, daily_goal, hired_on`

func scanCollector(row rowScanner) (*models.Collector, error) {
	var c models.Collector
	if err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.DocumentNumber, &c.Phone, &c.Email, &c.Active,
		&c.CommissionPercent, &c.DailyGoal, &c.HiredOn); err != nil {
		return nil, err
	}
	c.HiredOn = models.DateOf(c.HiredOn)
	return &c, nil
}

// GetCollector retrieves a collector and its route ids.
func (s *SQLStore) GetCollector(ctx context.Context, id uuid.UUID) (*models.Collector, error) {
	c, err := scanCollector(s.queryRow(ctx, `SELECT `+collectorColumns+` FROM collectors WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("collector")
		}
		return nil, fmt.Errorf("failed to get collector: %w", err)
	}
	routes, err := s.collectorRoutes(ctx)
	if err != nil {
		return nil, err
	}
	c.RouteIDs = routes[c.ID]
	return c, nil
}

// ListCollectors retrieves every collector with its route ids.
func (s *SQLStore) ListCollectors(ctx context.Context) ([]*models.Collector, error) {
	rows, err := s.query(ctx, `SELECT `+collectorColumns+` FROM collectors ORDER BY last_name, first_name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collectors: %w", err)
	}
	var collectors []*models.Collector
	for rows.Next() {
		c, err := scanCollector(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan collector row: %w", err)
		}
		collectors = append(collectors, c)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error during rows iteration for collectors: %w", err)
	}

	// rows must be closed before querying again: SQLite runs on one connection.
	routes, err := s.collectorRoutes(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range collectors {
		c.RouteIDs = routes[c.ID]
	}
	return collectors, nil
}

func (s *SQLStore) collectorRoutes(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	rows, err := s.query(ctx, `SELECT collector_id, route_id FROM collector_routes ORDER BY collector_id, route_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collector routes: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var cid, rid uuid.UUID
		if err := rows.Scan(&cid, &rid); err != nil {
			return nil, fmt.Errorf("failed to scan collector route: %w", err)
		}
		out[cid] = append(out[cid], rid)
	}
	return out, rows.Err()
}
