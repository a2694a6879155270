package service

import (
	"context"
	"strings"

	"echosphere/internal/model"
	"echosphere/internal/repository"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	postMediaPrefix     = "posts"
	defaultPostPageSize = 10
	maxPostPageSize     = 100
)

// PostInput carries the author-editable fields of a post. Nil fields are
// left unchanged on update.
type PostInput struct {
	Content    *string
	MediaKey   *string
	Visibility *string
}

type PageRequest struct {
	Page      int
	PageSize  int
	Ascending bool
}

func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPostPageSize
	}
	if p.PageSize > maxPostPageSize {
		p.PageSize = maxPostPageSize
	}
	return p
}

type postService struct {
	repos repository.Repositories
	uow   repository.UnitOfWork
}

// NewPostService returns the post service. Posts live only in the
// relational store and are never mirrored.
func NewPostService(repos repository.Repositories, uow repository.UnitOfWork) PostService {
	return &postService{repos: repos, uow: uow}
}

func (s *postService) Create(ctx context.Context, callerID uint, in PostInput) (*PostView, error) {
	if in.Content == nil || strings.TrimSpace(*in.Content) == "" {
		return nil, newError(ErrValidation, "Missing required fields")
	}

	post := &model.Post{
		UserID:     callerID,
		Content:    strings.TrimSpace(*in.Content),
		Visibility: model.VisibilityPublic,
	}
	if in.Visibility != nil {
		if !model.ValidVisibility(*in.Visibility) {
			return nil, newError(ErrValidation, "Invalid visibility %q", *in.Visibility)
		}
		post.Visibility = *in.Visibility
	}
	if in.MediaKey != nil {
		if err := checkMediaKey(callerID, *in.MediaKey); err != nil {
			return nil, err
		}
		post.MediaKey = *in.MediaKey
	}

	if _, err := s.repos.Users.FindByID(ctx, callerID); err != nil {
		return nil, lookupError(err, "User not found")
	}
	if err := s.repos.Posts.Create(ctx, post); err != nil {
		return nil, errors.Wrap(err, "failed to create post")
	}

	jww.DEBUG.Printf("user %d created post %d (%s)", callerID, post.ID, post.Visibility)

	return s.Get(ctx, callerID, post.ID)
}

func (s *postService) Get(ctx context.Context, callerID, postID uint) (*PostView, error) {
	post, err := visiblePost(ctx, s.repos, callerID, postID)
	if err != nil {
		return nil, err
	}
	view := newPostView(post, callerID)
	return &view, nil
}

func (s *postService) Update(ctx context.Context, callerID, postID uint, in PostInput) (*PostView, error) {
	fields := map[string]any{}
	if in.Content != nil {
		content := strings.TrimSpace(*in.Content)
		if content == "" {
			return nil, newError(ErrValidation, "Content cannot be empty")
		}
		fields["content"] = content
	}
	if in.Visibility != nil {
		if !model.ValidVisibility(*in.Visibility) {
			return nil, newError(ErrValidation, "Invalid visibility %q", *in.Visibility)
		}
		fields["visibility"] = *in.Visibility
	}
	if in.MediaKey != nil {
		if err := checkMediaKey(callerID, *in.MediaKey); err != nil {
			return nil, err
		}
		fields["media_key"] = *in.MediaKey
	}
	if len(fields) == 0 {
		return nil, newError(ErrValidation, "No fields to update")
	}

	err := s.uow.Do(ctx, func(r repository.Repositories) error {
		if _, err := authoredPost(ctx, r, callerID, postID, "edit"); err != nil {
			return err
		}
		return lookupError(r.Posts.Update(ctx, postID, fields), "Post not found")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, callerID, postID)
}

func (s *postService) Delete(ctx context.Context, callerID, postID uint) error {
	return s.uow.Do(ctx, func(r repository.Repositories) error {
		if _, err := authoredPost(ctx, r, callerID, postID, "delete"); err != nil {
			return err
		}
		if err := r.Posts.Delete(ctx, postID); err != nil {
			return lookupError(err, "Post not found")
		}
		jww.DEBUG.Printf("user %d deleted post %d", callerID, postID)
		return nil
	})
}

func (s *postService) Feed(ctx context.Context, callerID uint, page PageRequest) (*PostPage, error) {
	return s.list(ctx, callerID, repository.PostFilter{ViewerID: callerID}, page)
}

func (s *postService) Explore(ctx context.Context, page PageRequest) (*PostPage, error) {
	return s.list(ctx, 0, repository.PostFilter{PublicOnly: true}, page)
}

func (s *postService) Search(ctx context.Context, callerID uint, keyword string, page PageRequest) (*PostPage, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, newError(ErrValidation, "Keyword is required")
	}
	return s.list(ctx, callerID, repository.PostFilter{ViewerID: callerID, Keyword: keyword}, page)
}

func (s *postService) ByUser(ctx context.Context, callerID, authorID uint, page PageRequest) (*PostPage, error) {
	if _, err := s.repos.Users.FindByID(ctx, authorID); err != nil {
		return nil, lookupError(err, "User not found")
	}
	return s.list(ctx, callerID, repository.PostFilter{ViewerID: callerID, AuthorID: authorID}, page)
}

func (s *postService) ToggleLike(ctx context.Context, callerID, postID uint) (*LikeResult, error) {
	var result LikeResult
	err := s.uow.Do(ctx, func(r repository.Repositories) error {
		post, err := visiblePost(ctx, r, callerID, postID)
		if err != nil {
			return err
		}

		liked, err := r.Posts.HasLike(ctx, postID, callerID)
		if err != nil {
			return errors.Wrap(err, "failed to look up like")
		}

		likes := len(post.Likes)
		if liked {
			if err := r.Posts.RemoveLike(ctx, postID, callerID); err != nil {
				return errors.Wrap(err, "failed to remove like")
			}
			result = LikeResult{Message: "Unliked", Liked: false, Likes: likes - 1}
			return nil
		}
		if err := r.Posts.AddLike(ctx, postID, callerID); err != nil {
			return errors.Wrap(err, "failed to add like")
		}
		result = LikeResult{Message: "Liked", Liked: true, Likes: likes + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *postService) Comment(ctx context.Context, callerID, postID uint, content string) (*CommentResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newError(ErrValidation, "Missing or invalid comment content")
	}

	comment := &model.Comment{PostID: postID, UserID: callerID, Content: content}
	err := s.uow.Do(ctx, func(r repository.Repositories) error {
		if _, err := visiblePost(ctx, r, callerID, postID); err != nil {
			return err
		}
		author, err := r.Users.FindByID(ctx, callerID)
		if err != nil {
			return lookupError(err, "User not found")
		}
		if err := r.Posts.AddComment(ctx, comment); err != nil {
			return errors.Wrap(err, "failed to add comment")
		}
		comment.User = *author
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CommentResult{Message: "Comment added", Comment: newCommentView(comment)}, nil
}

func (s *postService) list(ctx context.Context, viewerID uint, filter repository.PostFilter, page PageRequest) (*PostPage, error) {
	page = page.normalize()
	filter.Offset = (page.Page - 1) * page.PageSize
	filter.Limit = page.PageSize
	filter.Ascending = page.Ascending

	posts, total, err := s.repos.Posts.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list posts")
	}

	views := make([]PostView, 0, len(posts))
	for i := range posts {
		views = append(views, newPostView(&posts[i], viewerID))
	}

	size := int64(page.PageSize)
	return &PostPage{
		Data: views,
		Meta: PageMeta{
			CurrentPage: page.Page,
			PageSize:    page.PageSize,
			TotalPosts:  total,
			TotalPages:  (total + size - 1) / size,
		},
	}, nil
}

// visiblePost loads a post and hides it behind ErrNotFound when the viewer
// may not see it.
func visiblePost(ctx context.Context, r repository.Repositories, viewerID, postID uint) (*model.Post, error) {
	post, err := r.Posts.FindByID(ctx, postID)
	if err != nil {
		return nil, lookupError(err, "Post not found")
	}
	if post.UserID == viewerID {
		return post, nil
	}

	switch post.Visibility {
	case model.VisibilityPublic:
		return post, nil
	case model.VisibilityFriends:
		friends, err := r.Friends.AreFriends(ctx, post.UserID, viewerID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to check friendship")
		}
		if friends {
			return post, nil
		}
	}
	return nil, newError(ErrNotFound, "Post not found")
}

func authoredPost(ctx context.Context, r repository.Repositories, callerID, postID uint, action string) (*model.Post, error) {
	post, err := visiblePost(ctx, r, callerID, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != callerID {
		return nil, newError(ErrForbidden, "You can only %s your own posts", action)
	}
	return post, nil
}

// checkMediaKey only accepts keys under the caller's own upload prefix.
func checkMediaKey(callerID uint, key string) error {
	if key == "" {
		return nil
	}
	if !strings.HasPrefix(key, postMediaPrefix+"/"+uintString(callerID)+"/") {
		return newError(ErrValidation, "Invalid media key")
	}
	return nil
}
