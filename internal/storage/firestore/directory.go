// Package firestore implements push.Directory on Google Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

const (
	usersCollection = "users"
	fieldRole       = "role"
	fieldToken      = "device_token"
	fieldUpdatedAt  = "updated_at"
)

// Directory stores one document per user: users/{userID}.
type Directory struct {
	client *firestore.Client
}

func NewDirectory(client *firestore.Client) *Directory {
	return &Directory{client: client}
}

// userRecord is the internal DB representation.
type userRecord struct {
	Role        string    `firestore:"role"`
	DeviceToken string    `firestore:"device_token,omitempty"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func (r userRecord) toUser(id string) push.User {
	return push.User{ID: id, Role: push.Role(r.Role), DeviceToken: r.DeviceToken}
}

// PutUser writes a user document, replacing any existing one.
func (s *Directory) PutUser(ctx context.Context, u push.User) error {
	_, err := s.users().Doc(u.ID).Set(ctx, userRecord{
		Role:        string(u.Role),
		DeviceToken: u.DeviceToken,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

func (s *Directory) GetUser(ctx context.Context, id string) (push.User, error) {
	snap, err := s.users().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return push.User{}, push.ErrUserNotFound
	}
	if err != nil {
		return push.User{}, fmt.Errorf("firestore get failed: %w", err)
	}
	return decode(snap)
}

func (s *Directory) GetUsers(ctx context.Context, ids []string) ([]push.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, s.users().Doc(id))
	}

	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("firestore get all failed: %w", err)
	}

	users := make([]push.User, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		u, err := decode(snap)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Directory) UsersWithTokenByRole(ctx context.Context, role push.Role) ([]push.User, error) {
	iter := s.users().Where(fieldRole, "==", string(role)).Documents(ctx)
	defer iter.Stop()

	var users []push.User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		u, err := decode(doc)
		if err != nil {
			return nil, err
		}
		// Firestore cannot index "field is non-empty", so the filter stays here.
		if u.DeviceToken != "" {
			users = append(users, u)
		}
	}
	return users, nil
}

// SetDeviceToken runs in a transaction so the token never has two owners.
func (s *Directory) SetDeviceToken(ctx context.Context, id, token string) error {
	ref := s.users().Doc(id)
	holders := s.users().Where(fieldToken, "==", token)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				return push.ErrUserNotFound
			}
			return err
		}

		// All reads must happen before the first write.
		others, err := tx.Documents(holders).GetAll()
		if err != nil {
			return err
		}

		for _, doc := range others {
			if doc.Ref.ID == id {
				continue
			}
			if err := tx.Update(doc.Ref, clearToken()); err != nil {
				return err
			}
		}
		return tx.Update(ref, []firestore.Update{
			{Path: fieldToken, Value: token},
			{Path: fieldUpdatedAt, Value: firestore.ServerTimestamp},
		})
	})
	if errors.Is(err, push.ErrUserNotFound) {
		return push.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("firestore set token failed: %w", err)
	}
	return nil
}

func (s *Directory) UnsetDeviceToken(ctx context.Context, id string) error {
	_, err := s.users().Doc(id).Update(ctx, clearToken())
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("firestore unset token failed: %w", err)
	}
	return nil
}

// UnsetDeviceTokenEverywhere clears the token from every holder. Each update is
// conditioned on the document not having changed since it was read, so a
// concurrent re-registration by its owner is not clobbered.
func (s *Directory) UnsetDeviceTokenEverywhere(ctx context.Context, token string) error {
	docs, err := s.users().Where(fieldToken, "==", token).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("firestore token lookup failed: %w", err)
	}

	for _, doc := range docs {
		_, err := doc.Ref.Update(ctx, clearToken(), firestore.LastUpdateTime(doc.UpdateTime))
		switch status.Code(err) {
		case codes.OK, codes.NotFound, codes.FailedPrecondition:
			continue
		default:
			return fmt.Errorf("firestore prune failed for %s: %w", doc.Ref.ID, err)
		}
	}
	return nil
}

func (s *Directory) users() *firestore.CollectionRef {
	return s.client.Collection(usersCollection)
}

func clearToken() []firestore.Update {
	return []firestore.Update{
		{Path: fieldToken, Value: firestore.Delete},
		{Path: fieldUpdatedAt, Value: firestore.ServerTimestamp},
	}
}

func decode(snap *firestore.DocumentSnapshot) (push.User, error) {
	var rec userRecord
	if err := snap.DataTo(&rec); err != nil {
		return push.User{}, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
	}
	return rec.toUser(snap.Ref.ID), nil
}
