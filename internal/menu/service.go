package menu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, name string, pricePaise int64, category, imageRef string) (Item, error)
	Get(ctx context.Context, id string) (Item, error)
	List(ctx context.Context) ([]Item, error)
	Update(ctx context.Context, id, name string, pricePaise int64, category, imageRef string) (Item, error)
	Delete(ctx context.Context, id string) error
}

// Images is the blob store slice the catalog needs.
type Images interface {
	UploadBase64(ctx context.Context, path, data, contentType string) error
	PublicURL(path string) string
	Delete(ctx context.Context, path string) error
}

const ImagePrefix = "menuImages/"

type Service struct {
	repo   Repository
	images Images
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, images Images, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, images: images, log: log, now: time.Now}
}

// IsBlobPath reports whether ref names an object in the blob store rather
// than an external URL.
func IsBlobPath(ref string) bool {
	return ref != "" && !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://")
}

func (s *Service) resolve(it Item) Item {
	switch {
	case it.ImageRef == "":
	case IsBlobPath(it.ImageRef) && s.images != nil:
		it.ImageURL = s.images.PublicURL(it.ImageRef)
	default:
		it.ImageURL = it.ImageRef
	}
	return it
}

func (s *Service) Resolve(it Item) Item { return s.resolve(it) }

func (s *Service) upload(ctx context.Context, b64 string) (string, error) {
	if s.images == nil {
		return "", fmt.Errorf("image upload not configured")
	}
	path := fmt.Sprintf("%simg_%d_%s.jpg", ImagePrefix, s.now().UnixMilli(), uuid.NewString()[:8])
	if err := s.images.UploadBase64(ctx, path, b64, "image/jpeg"); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return path, nil
}

func (s *Service) Create(ctx context.Context, in Input) (Item, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Item{}, err
	}
	ref := in.ImageRef
	if in.ImageBase64 != "" {
		p, err := s.upload(ctx, in.ImageBase64)
		if err != nil {
			return Item{}, err
		}
		ref = p
	}
	it, err := s.repo.Create(ctx, in.Name, *in.PricePaise, in.Category, ref)
	if err != nil {
		return Item{}, err
	}
	s.log.Info("menu item created", zap.String("item_id", it.ID), zap.String("name", it.Name))
	return s.resolve(it), nil
}

func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	it, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return s.resolve(it), nil
}

func (s *Service) List(ctx context.Context) ([]Item, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = s.resolve(items[i])
	}
	return items, nil
}

// Update replaces name, price and category. The image is kept unless a new
// one is uploaded or a new ref is given.
func (s *Service) Update(ctx context.Context, id string, in Input) (Item, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Item{}, err
	}
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	ref := cur.ImageRef
	switch {
	case in.ImageBase64 != "":
		if ref, err = s.upload(ctx, in.ImageBase64); err != nil {
			return Item{}, err
		}
	case in.ImageRef != "":
		ref = in.ImageRef
	}
	it, err := s.repo.Update(ctx, id, in.Name, *in.PricePaise, in.Category, ref)
	if err != nil {
		return Item{}, err
	}
	return s.resolve(it), nil
}

// Delete removes the catalog entry only. Its image stays in the blob store
// because past orders may still reference it through their lineItem.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("menu item deleted", zap.String("item_id", id))
	return nil
}

// DeleteImage purges one blob by path.
func (s *Service) DeleteImage(ctx context.Context, path string) error {
	if !IsBlobPath(path) || !strings.HasPrefix(path, ImagePrefix) {
		return &ValidationError{Field: "path", Reason: "not a menu image"}
	}
	if s.images == nil {
		return fmt.Errorf("image store not configured")
	}
	if err := s.images.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete image %s: %w", path, err)
	}
	s.log.Info("menu image deleted", zap.String("path", path))
	return nil
}
