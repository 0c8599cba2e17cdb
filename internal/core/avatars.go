package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"

	"escala/internal/blob"
	"escala/pkg/domain"

	"github.com/google/uuid"
)

// MaxAvatarBytes bounds the size of an uploaded avatar image.
const MaxAvatarBytes = 2 << 20

// ErrAvatarStoreUnavailable is returned by avatar operations when no blob
// store is configured.
var ErrAvatarStoreUnavailable = errors.New("avatar storage not configured")

var avatarExtensions = map[string]string{
	"png":  "png",
	"jpeg": "jpg",
	"gif":  "gif",
}

// SetVolunteerAvatar validates data as a PNG, JPEG or GIF image, stores it in
// the blob store and points the volunteer at it. The previous image is
// removed once the change is committed.
func (s *Service) SetVolunteerAvatar(ctx context.Context, id string, data []byte) (Volunteer, Result, error) {
	var updated Volunteer
	var res Result
	var previous, key string
	err := s.run(ctx, "set_volunteer_avatar", func(ctx context.Context) (string, error) {
		if s.blobs == nil {
			return id, ErrAvatarStoreUnavailable
		}
		if len(data) == 0 {
			return id, domain.ValidationError{Field: "avatar", Reason: "required"}
		}
		if len(data) > MaxAvatarBytes {
			return id, domain.ValidationError{Field: "avatar", Reason: fmt.Sprintf("exceeds %d bytes", MaxAvatarBytes)}
		}
		_, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return id, domain.ValidationError{Field: "avatar", Reason: "unsupported image format"}
		}
		ext, ok := avatarExtensions[format]
		if !ok {
			return id, domain.ValidationError{Field: "avatar", Reason: "unsupported image format"}
		}
		if _, ok := s.store.GetVolunteer(id); !ok {
			return id, domain.NotFoundError{Entity: EntityVolunteer, ID: id}
		}
		key = fmt.Sprintf("avatars/%s/%s.%s", id, uuid.NewString(), ext)
		if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
			ContentType: "image/" + format,
			Metadata:    map[string]string{"volunteer_id": id},
		}); err != nil {
			return id, fmt.Errorf("store avatar: %w", err)
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateVolunteer(id, func(v *Volunteer) error {
				previous = v.AvatarKey
				v.AvatarKey = key
				return nil
			})
			return err
		})
		return id, err
	})
	switch {
	case err == nil || isPersistFailure(err):
		s.discardBlob(ctx, previous)
	case key != "":
		s.discardBlob(ctx, key)
	}
	return updated, res, err
}

// RemoveVolunteerAvatar clears the avatar reference and deletes the image.
func (s *Service) RemoveVolunteerAvatar(ctx context.Context, id string) (Volunteer, Result, error) {
	var updated Volunteer
	var res Result
	var previous string
	err := s.run(ctx, "remove_volunteer_avatar", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateVolunteer(id, func(v *Volunteer) error {
				previous = v.AvatarKey
				v.AvatarKey = ""
				return nil
			})
			return err
		})
		return id, err
	})
	if err == nil || isPersistFailure(err) {
		s.discardBlob(ctx, previous)
	}
	return updated, res, err
}

// Avatar opens the volunteer's avatar image. The caller closes the reader.
func (s *Service) Avatar(ctx context.Context, id string) (blob.Info, io.ReadCloser, error) {
	vol, ok := s.store.GetVolunteer(id)
	if !ok {
		return blob.Info{}, nil, domain.NotFoundError{Entity: EntityVolunteer, ID: id}
	}
	if vol.AvatarKey == "" || s.blobs == nil {
		return blob.Info{}, nil, domain.NotFoundError{Entity: "avatar", ID: id}
	}
	info, rc, err := s.blobs.Get(ctx, vol.AvatarKey)
	if errors.Is(err, blob.ErrNotFound) {
		return blob.Info{}, nil, domain.NotFoundError{Entity: "avatar", ID: id}
	}
	return info, rc, err
}

// discardBlob deletes key, logging failures. Orphaned images are harmless.
func (s *Service) discardBlob(ctx context.Context, key string) {
	if key == "" || s.blobs == nil {
		return
	}
	if _, err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("avatar cleanup failed", "key", key, "error", err)
	}
}

// isPersistFailure reports whether err is a write-through failure after an
// in-memory commit.
func isPersistFailure(err error) bool {
	return errors.Is(err, domain.ErrPersist)
}
