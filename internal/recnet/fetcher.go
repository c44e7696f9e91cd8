package recnet

import (
	"context"
	"fmt"

	"rrtracker/internal/entity"
)

// Describe returns display metadata for the entity.
func (c *Client) Describe(ctx context.Context, k entity.Kind, id int64) (entity.Meta, error) {
	switch k.Resource {
	case entity.ResourceAccount:
		a, err := c.Account(ctx, id)
		if err != nil {
			return entity.Meta{}, err
		}
		return entity.Meta{Name: a.Username, ImageURL: c.ImageURL(a.ProfileImage)}, nil
	case entity.ResourceRoom:
		r, err := c.Room(ctx, id)
		if err != nil {
			return entity.Meta{}, err
		}
		return entity.Meta{Name: r.Name, ImageURL: c.ImageURL(r.ImageName)}, nil
	default:
		return entity.Meta{}, fmt.Errorf("recnet: unsupported resource %q", k.Resource)
	}
}

// Fetch returns the current counters of the entity as a snapshot of kind k.
func (c *Client) Fetch(ctx context.Context, k entity.Kind, id int64, cred entity.Credential) (entity.Snapshot, error) {
	switch k.Resource {
	case entity.ResourceAccount:
		n, err := c.Subscribers(ctx, id, cred)
		if err != nil {
			return entity.Snapshot{}, err
		}
		return entity.NewSnapshot(k, map[entity.Field]int64{entity.Subscribers: n})
	case entity.ResourceRoom:
		r, err := c.Room(ctx, id)
		if err != nil {
			return entity.Snapshot{}, err
		}
		return entity.NewSnapshot(k, map[entity.Field]int64{
			entity.Visits:    r.Stats.VisitCount,
			entity.Visitors:  r.Stats.VisitorCount,
			entity.Cheers:    r.Stats.CheerCount,
			entity.Favorites: r.Stats.FavoriteCount,
		})
	default:
		return entity.Snapshot{}, fmt.Errorf("recnet: unsupported resource %q", k.Resource)
	}
}

// Resolve turns a configured reference into an entity id. ref may be a
// numeric id, an account username / room name, or "self" for accounts (the
// logged-in account, which needs cred).
func (c *Client) Resolve(ctx context.Context, k entity.Kind, id int64, ref string, cred entity.Credential) (int64, error) {
	if id > 0 {
		return id, nil
	}
	switch k.Resource {
	case entity.ResourceAccount:
		if ref == "" || ref == "self" {
			a, err := c.Me(ctx, cred)
			if err != nil {
				return 0, fmt.Errorf("resolve logged-in account: %w", err)
			}
			return a.AccountID, nil
		}
		a, err := c.LookupAccount(ctx, ref)
		if err != nil {
			return 0, fmt.Errorf("resolve account %q: %w", ref, err)
		}
		return a.AccountID, nil
	case entity.ResourceRoom:
		if ref == "" {
			return 0, fmt.Errorf("room name or id required")
		}
		r, err := c.LookupRoom(ctx, ref)
		if err != nil {
			return 0, fmt.Errorf("resolve room %q: %w", ref, err)
		}
		return r.RoomID, nil
	default:
		return 0, fmt.Errorf("recnet: unsupported resource %q", k.Resource)
	}
}

// Renewer binds login credentials so a tracker can re-authenticate.
type Renewer struct {
	Client   *Client
	Username string
	Password string
}

func (r Renewer) Renew(ctx context.Context) (entity.Credential, error) {
	return r.Client.Authenticate(ctx, r.Username, r.Password)
}
