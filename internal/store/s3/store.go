// Package s3 implements store.FileStore on an S3-compatible bucket. The drive
// ID is the bucket name and folder IDs are key prefixes ending in "/".
package s3

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dl-alexandre/bimview/internal/errors"
	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/google/uuid"
)

const (
	serviceName = "s3"
	delimiter   = "/"
	maxKeys     = 1000
)

// Options configures the S3 client
type Options struct {
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
	MaxRetries      int
	HTTPClient      *http.Client
	Profile         string
	Logger          logging.Logger
}

// Store lists and downloads objects
type Store struct {
	client  *s3.Client
	profile string
	logger  logging.Logger
}

// New loads the AWS configuration and creates a store. Static keys in opts
// take precedence over the default credential chain.
func New(ctx context.Context, opts Options) (*Store, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
		config.WithRetryMaxAttempts(opts.MaxRetries + 1),
	}
	if opts.HTTPClient != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(opts.HTTPClient))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthClientMissing,
			fmt.Sprintf("failed to load AWS config: %v", err)).Build())
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return NewFromClient(client, opts.Profile, opts.Logger), nil
}

// NewFromClient wraps an existing S3 client
func NewFromClient(client *s3.Client, profile string, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Store{client: client, profile: profile, logger: logger}
}

// Name implements store.FileStore
func (s *Store) Name() string {
	return serviceName
}

func (s *Store) newRequestContext(ctx context.Context, bucket string, requestType types.RequestType) *types.RequestContext {
	traceID := logging.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return &types.RequestContext{
		Profile:     s.profile,
		DriveID:     bucket,
		RequestType: requestType,
		TraceID:     traceID,
	}
}

// folderPrefix turns a folder ID into a listing prefix. The bucket root is
// the empty prefix.
func folderPrefix(folderID string) string {
	if folderID == "" || folderID == utils.RootFolderID {
		return ""
	}
	if !strings.HasSuffix(folderID, delimiter) {
		return folderID + delimiter
	}
	return folderID
}

// ListChildren implements store.FileStore
func (s *Store) ListChildren(ctx context.Context, bucket, folderID string) ([]types.RemoteNode, error) {
	reqCtx := s.newRequestContext(ctx, bucket, types.RequestTypeListChildren)
	reqCtx.InvolvedParentIDs = []string{folderID}
	prefix := folderPrefix(folderID)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
		MaxKeys:   aws.Int32(maxKeys),
	})

	var nodes []types.RemoteNode
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.classify(err, reqCtx)
		}
		for _, cp := range page.CommonPrefixes {
			p := aws.ToString(cp.Prefix)
			nodes = append(nodes, types.RemoteNode{
				ID:       p,
				Name:     path.Base(strings.TrimSuffix(p, delimiter)),
				IsFolder: true,
				ParentID: folderID,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				// folder placeholder object
				continue
			}
			node := types.RemoteNode{
				ID:       key,
				Name:     path.Base(key),
				ParentID: folderID,
				Size:     aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				node.ModifiedTime = *obj.LastModified
			}
			nodes = append(nodes, node)
		}
	}

	s.logger.WithTraceID(reqCtx.TraceID).Debug("Listed prefix",
		logging.F("bucket", bucket),
		logging.F("prefix", prefix),
		logging.F("count", len(nodes)),
	)
	return nodes, nil
}

// FetchContent implements store.FileStore
func (s *Store) FetchContent(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	reqCtx := s.newRequestContext(ctx, bucket, types.RequestTypeDownload)
	reqCtx.InvolvedFileIDs = []string{key}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, s.classify(err, reqCtx)
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, errors.ClassifyTransportError(serviceName, fmt.Errorf("download interrupted: %w", err), reqCtx, s.logger)
	}
	return n, nil
}

// classify maps SDK errors onto the CLI taxonomy. Service responses carry an
// HTTP status; everything else is a transport fault.
func (s *Store) classify(err error, reqCtx *types.RequestContext) error {
	var respErr *awshttp.ResponseError
	if !stderrors.As(err, &respErr) {
		return errors.ClassifyTransportError(serviceName, err, reqCtx, s.logger)
	}

	failure := errors.HTTPFailure{Status: respErr.HTTPStatusCode(), Message: err.Error()}
	if respErr.Response != nil && respErr.Response.Response != nil {
		failure.Header = respErr.Response.Header
	}
	var apiErr interface {
		ErrorCode() string
		ErrorMessage() string
	}
	if stderrors.As(err, &apiErr) {
		failure.Code = apiErr.ErrorCode()
		if msg := apiErr.ErrorMessage(); msg != "" {
			failure.Message = msg
		}
	}
	return errors.ClassifyHTTPStatus(serviceName, failure, reqCtx, s.logger)
}
