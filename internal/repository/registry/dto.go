package registry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/orbis-search/orbis/internal/domain"
)

// Hash field names for persisted domain definitions.
const (
	fieldName        = "name"
	fieldDisplayName = "display_name"
	fieldThreshold   = "threshold"
	fieldMaxResults  = "max_results"
	fieldDimension   = "dimension"
	fieldStoragePath = "storage_path"
	fieldActive      = "active"
	fieldCreatedAt   = "created_at"
)

func domainToHash(d domain.Domain) map[string]string {
	return map[string]string{
		fieldName:        d.Name,
		fieldDisplayName: d.DisplayName,
		fieldThreshold:   strconv.FormatFloat(d.Threshold, 'g', -1, 64),
		fieldMaxResults:  strconv.Itoa(d.MaxResults),
		fieldDimension:   strconv.Itoa(d.Dimension),
		fieldStoragePath: d.StoragePath,
		fieldActive:      strconv.FormatBool(d.Active),
		fieldCreatedAt:   d.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func domainFromHash(m map[string]string) (domain.Domain, error) {
	threshold, err := strconv.ParseFloat(m[fieldThreshold], 64)
	if err != nil {
		return domain.Domain{}, fmt.Errorf("parse threshold %q: %w", m[fieldThreshold], err)
	}
	maxResults, err := strconv.Atoi(m[fieldMaxResults])
	if err != nil {
		return domain.Domain{}, fmt.Errorf("parse max_results %q: %w", m[fieldMaxResults], err)
	}
	dimension, err := strconv.Atoi(m[fieldDimension])
	if err != nil {
		return domain.Domain{}, fmt.Errorf("parse dimension %q: %w", m[fieldDimension], err)
	}
	active, err := strconv.ParseBool(m[fieldActive])
	if err != nil {
		return domain.Domain{}, fmt.Errorf("parse active %q: %w", m[fieldActive], err)
	}

	var createdAt time.Time
	if raw := m[fieldCreatedAt]; raw != "" {
		createdAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Domain{}, fmt.Errorf("parse created_at %q: %w", raw, err)
		}
	}

	return domain.Domain{
		Name:        m[fieldName],
		DisplayName: m[fieldDisplayName],
		Threshold:   threshold,
		MaxResults:  maxResults,
		Dimension:   dimension,
		StoragePath: m[fieldStoragePath],
		Active:      active,
		CreatedAt:   createdAt,
	}, nil
}
