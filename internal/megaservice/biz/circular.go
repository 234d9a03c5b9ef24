package biz

import (
	"context"
	"errors"

	"github.com/kart-io/logger"

	"github.com/kart-io/megaservice/internal/megaservice/store"
	"github.com/kart-io/megaservice/internal/model"
	errno "github.com/kart-io/megaservice/pkg/errors"
	ctxlog "github.com/kart-io/megaservice/pkg/infra/logger"
)

// CircularService 通函元数据业务接口。
type CircularService interface {
	Update(ctx context.Context, req *model.CircularUpdateRequest) error
	List(ctx context.Context, bookmarked bool) ([]model.Circular, error)
	Detail(ctx context.Context, id string) (*model.CircularDetail, error)
}

type circularService struct {
	store store.CircularStore
}

// NewCircularService 创建通函服务。
func NewCircularService(st store.CircularStore) CircularService {
	return &circularService{store: st}
}

// Update 设置书签或关联会话。
func (s *circularService) Update(ctx context.Context, req *model.CircularUpdateRequest) error {
	if req.Empty() {
		return errno.ErrEmptyCircularUpdate
	}
	patch := store.CircularPatch{Bookmark: req.Bookmark, ConversationID: req.ConversationID}
	if err := s.store.UpdateCircular(ctx, req.CircularID, patch); err != nil {
		return circularErr(err)
	}
	logger.Infow("circular updated", append(ctxlog.Fields(ctx), "circular_id", req.CircularID)...)
	return nil
}

// List 列出全部或已加书签的通函。
func (s *circularService) List(ctx context.Context, bookmarked bool) ([]model.Circular, error) {
	list, err := s.store.ListCirculars(ctx, bookmarked)
	if err != nil {
		return nil, circularErr(err)
	}
	return list, nil
}

// Detail 返回通函及其 references 指向的通函，按 references 顺序排列。
func (s *circularService) Detail(ctx context.Context, id string) (*model.CircularDetail, error) {
	c, err := s.store.GetCircular(ctx, id)
	if err != nil {
		return nil, circularErr(err)
	}

	refs, err := s.store.FindCirculars(ctx, c.References)
	if err != nil {
		return nil, circularErr(err)
	}
	byID := make(map[string]model.Circular, len(refs))
	for _, r := range refs {
		byID[r.CircularID] = r
	}
	ordered := make([]model.Circular, 0, len(refs))
	for _, ref := range c.References {
		if r, ok := byID[ref]; ok {
			ordered = append(ordered, r)
			delete(byID, ref)
		}
	}
	return &model.CircularDetail{Circular: c, References: ordered}, nil
}

func circularErr(err error) error {
	if errors.Is(err, store.ErrCircularNotFound) {
		return errno.ErrCircularNotFound
	}
	return errno.ErrDatabase.WithCause(err)
}
