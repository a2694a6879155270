package service

import (
	"context"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"echosphere/internal/config"
	"echosphere/internal/model"
	"echosphere/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	MaxAvatarSize    = 5 << 20
	MaxPostMediaSize = 20 << 20
	mediaURLTTL      = 15 * time.Minute
)

// Uploader is the part of the S3 upload manager the media service uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type mediaService struct {
	bucket   string
	users    repository.UserRepository
	uploader Uploader
	presign  func(ctx context.Context, key string) (string, error)
	ping     func(ctx context.Context) error
}

// NewS3MediaService stores profile pictures and post media in the
// configured bucket.
func NewS3MediaService(cfg *config.Config, users repository.UserRepository) MediaService {
	var s3Opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	awsCfg := aws.Config{
		Region:      cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
	}
	client := s3.NewFromConfig(awsCfg, s3Opts...)
	presignClient := s3.NewPresignClient(client)
	bucket := cfg.S3BucketName

	jww.INFO.Printf("S3 media storage initialised (bucket %s, endpoint %q)", bucket, cfg.S3Endpoint)

	return &mediaService{
		bucket:   bucket,
		users:    users,
		uploader: manager.NewUploader(client),
		presign: func(ctx context.Context, key string) (string, error) {
			req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			}, s3.WithPresignExpires(mediaURLTTL))
			if err != nil {
				return "", err
			}
			return req.URL, nil
		},
		ping: func(ctx context.Context) error {
			_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
			return err
		},
	}
}

func (s *mediaService) UploadAvatar(ctx context.Context, userID uint, file io.Reader, filename, contentType string, size int64) (*model.FileMetadata, error) {
	if size > MaxAvatarSize {
		return nil, newError(ErrValidation, "Profile picture must be at most %d bytes", MaxAvatarSize)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, newError(ErrValidation, "Profile picture must be an image")
	}

	meta, err := s.upload(ctx, "avatars", userID, file, filename, contentType, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upload profile picture")
	}

	if err := s.users.UpdateProfilePicture(ctx, userID, meta.S3Key); err != nil {
		return nil, lookupError(err, "User not found")
	}
	return meta, nil
}

// UploadPostMedia stores an image or video under the uploader's post
// prefix. The returned key is what a post references as its media.
func (s *mediaService) UploadPostMedia(ctx context.Context, userID uint, file io.Reader, filename, contentType string, size int64) (*model.FileMetadata, error) {
	if size > MaxPostMediaSize {
		return nil, newError(ErrValidation, "Post media must be at most %d bytes", MaxPostMediaSize)
	}
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		return nil, newError(ErrValidation, "Post media must be an image or a video")
	}

	meta, err := s.upload(ctx, postMediaPrefix, userID, file, filename, contentType, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upload post media")
	}
	return meta, nil
}

func (s *mediaService) upload(ctx context.Context, prefix string, userID uint, file io.Reader, filename, contentType string, size int64) (*model.FileMetadata, error) {
	fileID := uuid.New().String()
	key := path.Join(prefix, uintString(userID), fileID, path.Base(filename))

	jww.DEBUG.Printf("uploading %s to %s/%s", filename, s.bucket, key)

	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, err
	}

	jww.INFO.Printf("file for user %d stored at %s", userID, result.Location)

	return &model.FileMetadata{
		ID:               fileID,
		Filename:         filename,
		Size:             size,
		ContentType:      contentType,
		S3Key:            key,
		S3Bucket:         s.bucket,
		UploadedByUserID: userID,
		CreatedAt:        time.Now(),
	}, nil
}

// AvatarURL signs a download link for the user's profile picture.
func (s *mediaService) AvatarURL(ctx context.Context, userID uint) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", lookupError(err, "User not found")
	}
	if user.ProfilePictureKey == "" {
		return "", newError(ErrNotFound, "User has no profile picture")
	}
	return s.PresignURL(ctx, user.ProfilePictureKey)
}

// PresignURL returns a short-lived download URL for key.
func (s *mediaService) PresignURL(ctx context.Context, key string) (string, error) {
	url, err := s.presign(ctx, key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign media URL")
	}
	return url, nil
}

// HealthCheck verifies that the bucket is reachable.
func (s *mediaService) HealthCheck(ctx context.Context) error {
	return errors.Wrap(s.ping(ctx), "storage health check failed")
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
