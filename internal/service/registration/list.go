package registration

import (
	"context"
	"strings"

	"github.com/gfgkiit/trapped/internal/apperr"
	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/repository"
)

// Slot selects which domain preference a filter matches against.
type Slot string

const (
	SlotFirst  Slot = "first"
	SlotSecond Slot = "second"
	SlotBoth   Slot = "both"
)

// ParseSlot maps a query value onto a Slot. Empty means SlotBoth.
func ParseSlot(value string) (Slot, error) {
	switch Slot(strings.ToLower(strings.TrimSpace(value))) {
	case "", SlotBoth:
		return SlotBoth, nil
	case SlotFirst:
		return SlotFirst, nil
	case SlotSecond:
		return SlotSecond, nil
	default:
		return "", apperr.Validation("slot", "slot must be first, second or both")
	}
}

// Matches holds registrations grouped by the preference slot that matched.
type Matches struct {
	Domain string
	First  []domain.Registration
	Second []domain.Registration
}

// All returns first-slot matches followed by second-slot matches, each
// registration at most once.
func (m Matches) All() []domain.Registration {
	out := make([]domain.Registration, 0, len(m.First)+len(m.Second))
	seen := make(map[string]struct{}, len(m.First))
	for _, reg := range m.First {
		seen[reg.ID] = struct{}{}
		out = append(out, reg)
	}
	for _, reg := range m.Second {
		if _, ok := seen[reg.ID]; ok {
			continue
		}
		out = append(out, reg)
	}
	return out
}

// ResolveDomain maps a user supplied domain name, slug or alias onto its
// catalog display name.
func (s Service) ResolveDomain(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("domain", "domain is required")
	}
	canonical, ok := s.validator.Catalog().Resolve(name)
	if !ok {
		return "", apperr.Validation("domain", "unknown domain: "+name)
	}
	return canonical, nil
}

// List returns every registration, or those whose preference in slot
// matches domainName when it is set.
func (s Service) List(ctx context.Context, domainName string, slot Slot) ([]domain.Registration, error) {
	if strings.TrimSpace(domainName) == "" {
		records, err := s.repo.ListRegistrations(ctx, repository.RegistrationFilter{})
		if err != nil {
			return nil, s.upstream("list registrations", err)
		}
		return records, nil
	}
	matches, err := s.Match(ctx, domainName, slot)
	if err != nil {
		return nil, err
	}
	return matches.All(), nil
}

// Match groups registrations whose first or second preference equals the
// resolved domain.
func (s Service) Match(ctx context.Context, domainName string, slot Slot) (Matches, error) {
	canonical, err := s.ResolveDomain(domainName)
	if err != nil {
		return Matches{}, err
	}
	if slot == "" {
		slot = SlotBoth
	}
	matches := Matches{Domain: canonical, First: []domain.Registration{}, Second: []domain.Registration{}}
	if slot == SlotFirst || slot == SlotBoth {
		matches.First, err = s.repo.ListRegistrations(ctx, repository.RegistrationFilter{Domain1: canonical})
		if err != nil {
			return Matches{}, s.upstream("list by first domain", err)
		}
	}
	if slot == SlotSecond || slot == SlotBoth {
		matches.Second, err = s.repo.ListRegistrations(ctx, repository.RegistrationFilter{Domain2: canonical})
		if err != nil {
			return Matches{}, s.upstream("list by second domain", err)
		}
	}
	return matches, nil
}
