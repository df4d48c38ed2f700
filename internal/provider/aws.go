package provider

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	cargoconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/cloudorch/orchestrator/internal/model"
)

// cargoshipMultipartThreshold is the object size above which a
// cross-provider migration into AWS uses cargoship's BBR/CUBIC transporter
// instead of the SDK's manager.Uploader. Below it the per-object overhead
// of cargoship's adaptive congestion control isn't worth paying.
const cargoshipMultipartThreshold = 32 * 1024 * 1024

// awsTierClasses maps temperature tiers to S3 storage classes, grounded
// on the same tier table objectfs ships for its S3 backend.
var awsTierClasses = map[model.Tier]string{
	model.TierHot:     "STANDARD",
	model.TierWarm:    "STANDARD_IA",
	model.TierCold:    "GLACIER_IR",
	model.TierArchive: "DEEP_ARCHIVE",
}

// AwsAdapter implements Adapter against Amazon S3.
type AwsAdapter struct {
	client *s3.Client

	// transporters holds one cargoship Transporter per destination bucket,
	// built lazily since cargoship binds a bucket into its config at
	// construction while this adapter serves every bucket a caller names.
	transportersMu sync.Mutex
	transporters   map[string]*cargoships3.Transporter
}

// NewAwsAdapter builds an AwsAdapter from a region and optional
// credentials profile. An empty region uses the SDK's default resolution
// chain (env vars, shared config, IMDS).
func NewAwsAdapter(ctx context.Context, region string) (*AwsAdapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, translate(reasonUnavailable, "provider-aws", "connect", "failed to load AWS config", err)
	}
	return &AwsAdapter{
		client:       s3.NewFromConfig(cfg),
		transporters: make(map[string]*cargoships3.Transporter),
	}, nil
}

// transporterFor returns the cargoship Transporter bound to bucket,
// building and caching it on first use.
func (a *AwsAdapter) transporterFor(bucket string) *cargoships3.Transporter {
	a.transportersMu.Lock()
	defer a.transportersMu.Unlock()
	if t, ok := a.transporters[bucket]; ok {
		return t
	}
	t := cargoships3.NewTransporter(a.client, cargoconfig.S3Config{
		Bucket:             bucket,
		StorageClass:       cargoconfig.StorageClassIntelligentTiering,
		MultipartThreshold: cargoshipMultipartThreshold,
		MultipartChunkSize: 16 * 1024 * 1024,
		Concurrency:        8,
	})
	a.transporters[bucket] = t
	return t
}

func (a *AwsAdapter) Name() Name { return AWS }

func (a *AwsAdapter) TierStorageClass(tier model.Tier) string {
	if class, ok := awsTierClasses[tier]; ok {
		return class
	}
	return "STANDARD"
}

func (a *AwsAdapter) StorageClassTier(storageClass string) model.Tier {
	switch storageClass {
	case "GLACIER_IR", "GLACIER":
		return model.TierCold
	case "DEEP_ARCHIVE":
		return model.TierArchive
	case "STANDARD_IA", "ONEZONE_IA":
		return model.TierWarm
	default:
		return model.TierHot
	}
}

func (a *AwsAdapter) Enumerate(ctx context.Context, opts EnumerateOptions) (Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(opts.Container),
		Prefix: aws.String(opts.Prefix),
	}
	if opts.PageSize > 0 {
		input.MaxKeys = aws.Int32(int32(opts.PageSize))
	}
	if opts.PageToken != "" {
		input.ContinuationToken = aws.String(opts.PageToken)
	}

	out, err := a.client.ListObjectsV2(ctx, input)
	if err != nil {
		return Page{}, translateAWSError(err, "provider-aws", "enumerate")
	}

	refs := make([]model.ObjectRef, 0, len(out.Contents))
	for _, obj := range out.Contents {
		refs = append(refs, model.ObjectRef{
			Provider:             string(AWS),
			Container:            opts.Container,
			Key:                  aws.ToString(obj.Key),
			SizeBytes:            aws.ToInt64(obj.Size),
			LastModified:         aws.ToTime(obj.LastModified),
			ProviderStorageClass: string(obj.StorageClass),
			ETag:                 aws.ToString(obj.ETag),
		})
	}

	page := Page{Objects: refs}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

func (a *AwsAdapter) Stat(ctx context.Context, container, key string) (model.ObjectRef, error) {
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return model.ObjectRef{}, translateAWSError(err, "provider-aws", "stat")
	}
	return model.ObjectRef{
		Provider:             string(AWS),
		Container:            container,
		Key:                  key,
		SizeBytes:            aws.ToInt64(out.ContentLength),
		LastModified:         aws.ToTime(out.LastModified),
		ProviderStorageClass: string(out.StorageClass),
		ETag:                 aws.ToString(out.ETag),
	}, nil
}

func (a *AwsAdapter) CopyObject(ctx context.Context, source Adapter, opts CopyOptions) (model.ObjectRef, error) {
	if _, ok := source.(*AwsAdapter); ok {
		copySource := fmt.Sprintf("%s/%s", opts.SourceContainer, opts.SourceKey)
		input := &s3.CopyObjectInput{
			Bucket:     aws.String(opts.DestContainer),
			Key:        aws.String(opts.DestKey),
			CopySource: aws.String(copySource),
		}
		if opts.StorageClass != "" {
			input.StorageClass = s3types.StorageClass(opts.StorageClass)
		}
		if _, err := a.client.CopyObject(ctx, input); err != nil {
			return model.ObjectRef{}, translateAWSError(err, "provider-aws", "copy_object")
		}
		return a.Stat(ctx, opts.DestContainer, opts.DestKey)
	}
	return a.streamingCopy(ctx, source, opts)
}

// streamingCopy handles cross-provider copies: read the whole object from
// source via its own adapter surface and upload it here. Objects at or
// above cargoshipMultipartThreshold go through cargoship's adaptive
// transporter for its BBR/CUBIC-tuned multipart uploads; smaller objects
// use the SDK's managed uploader, whose per-part overhead isn't worth
// cargoship's extra setup below that size.
func (a *AwsAdapter) streamingCopy(ctx context.Context, source Adapter, opts CopyOptions) (model.ObjectRef, error) {
	reader, ok := source.(interface {
		openReader(ctx context.Context, container, key string) (io.ReadCloser, error)
	})
	if !ok {
		return model.ObjectRef{}, translate(reasonInvalidArgument, "provider-aws", "copy_object", "source adapter does not support streaming reads", nil)
	}
	body, err := reader.openReader(ctx, opts.SourceContainer, opts.SourceKey)
	if err != nil {
		return model.ObjectRef{}, err
	}
	defer body.Close()

	sourceRef, err := source.Stat(ctx, opts.SourceContainer, opts.SourceKey)
	if err == nil && sourceRef.SizeBytes >= cargoshipMultipartThreshold {
		archive := cargoships3.Archive{
			Key:          opts.DestKey,
			Reader:       body,
			Size:         sourceRef.SizeBytes,
			StorageClass: cargoStorageClass(opts.StorageClass),
		}
		if _, err := a.transporterFor(opts.DestContainer).Upload(ctx, archive); err != nil {
			return model.ObjectRef{}, translateAWSError(err, "provider-aws", "copy_object")
		}
		return a.Stat(ctx, opts.DestContainer, opts.DestKey)
	}

	uploader := manager.NewUploader(a.client)
	input := &s3.PutObjectInput{
		Bucket: aws.String(opts.DestContainer),
		Key:    aws.String(opts.DestKey),
		Body:   body,
	}
	if opts.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(opts.StorageClass)
	}
	if _, err := uploader.Upload(ctx, input); err != nil {
		return model.ObjectRef{}, translateAWSError(err, "provider-aws", "copy_object")
	}
	return a.Stat(ctx, opts.DestContainer, opts.DestKey)
}

func cargoStorageClass(storageClass string) cargoconfig.StorageClass {
	if storageClass == "" {
		return cargoconfig.StorageClassStandard
	}
	return cargoconfig.StorageClass(storageClass)
}

func (a *AwsAdapter) openReader(ctx context.Context, container, key string) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateAWSError(err, "provider-aws", "get_object")
	}
	return out.Body, nil
}

func (a *AwsAdapter) Delete(ctx context.Context, container, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return translateAWSError(err, "provider-aws", "delete")
	}
	return nil
}

func (a *AwsAdapter) SetStorageClass(ctx context.Context, container, key, storageClass string) error {
	copySource := fmt.Sprintf("%s/%s", container, key)
	_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(container),
		Key:               aws.String(key),
		CopySource:        aws.String(copySource),
		StorageClass:      s3types.StorageClass(storageClass),
		MetadataDirective: s3types.MetadataDirectiveCopy,
	})
	if err != nil {
		return translateAWSError(err, "provider-aws", "set_storage_class")
	}
	return nil
}

func (a *AwsAdapter) PresignGet(ctx context.Context, container, key string, ttl time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(a.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", translateAWSError(err, "provider-aws", "presign_get")
	}
	return req.URL, nil
}
