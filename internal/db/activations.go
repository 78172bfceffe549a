package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Activation is one journal row: a successful up or down.
type Activation struct {
	ID             int64
	Timestamp      time.Time
	Action         string // "up" or "down"
	LANInterface   string
	LocalSubnet    string
	VirtualSubnet  string
	AllowLANToMesh bool
	Ruleset        string
}

// RecordActivation appends an entry to the journal.
func (d *DB) RecordActivation(ctx context.Context, a *Activation) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO activations (action, lan_interface, local_subnet, virtual_subnet, allow_lan_to_mesh, ruleset)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Action, a.LANInterface, a.LocalSubnet, a.VirtualSubnet, boolToInt(a.AllowLANToMesh), a.Ruleset,
	)
	if err != nil {
		return fmt.Errorf("db: record activation: %w", err)
	}
	return nil
}

// LastActivation returns the most recent journal entry, or nil if the
// journal is empty.
func (d *DB) LastActivation(ctx context.Context) (*Activation, error) {
	row := d.QueryRowContext(ctx, `
		SELECT id, timestamp, action, lan_interface, local_subnet, virtual_subnet, allow_lan_to_mesh, ruleset
		FROM activations
		ORDER BY id DESC
		LIMIT 1`)

	a, err := scanActivation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: last activation: %w", err)
	}
	return a, nil
}

// ListActivations returns up to limit journal entries, newest first.
func (d *DB) ListActivations(ctx context.Context, limit int) ([]Activation, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT id, timestamp, action, lan_interface, local_subnet, virtual_subnet, allow_lan_to_mesh, ruleset
		FROM activations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list activations: %w", err)
	}
	defer rows.Close()

	var out []Activation
	for rows.Next() {
		a, err := scanActivation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("db: scan activation: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate activations: %w", err)
	}
	return out, nil
}

func scanActivation(scan func(dest ...any) error) (*Activation, error) {
	var a Activation
	var ts int64
	var allow int
	if err := scan(&a.ID, &ts, &a.Action, &a.LANInterface, &a.LocalSubnet, &a.VirtualSubnet, &allow, &a.Ruleset); err != nil {
		return nil, err
	}
	a.Timestamp = time.Unix(ts, 0).UTC()
	a.AllowLANToMesh = allow != 0
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
