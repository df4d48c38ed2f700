package provider

import (
	"context"
	"errors"
	"net/http"

	smithy "github.com/aws/smithy-go"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	azcore "github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	gcsstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

// adapterReason is the provider-local classification a provider-native
// error is reduced to before it crosses the adapter boundary (see the
// error handling design's adapter-level taxonomy).
type adapterReason string

const (
	reasonPermissionDenied adapterReason = "PERMISSION_DENIED"
	reasonNotFound         adapterReason = "NOT_FOUND"
	reasonQuotaExceeded    adapterReason = "QUOTA_EXCEEDED"
	reasonTransient        adapterReason = "TRANSIENT"
	reasonInvalidArgument  adapterReason = "INVALID_ARGUMENT"
	reasonUnavailable      adapterReason = "UNAVAILABLE"
)

func translate(reason adapterReason, component, operation, message string, cause error) *orcherr.Error {
	var code orcherr.Code
	switch reason {
	case reasonPermissionDenied:
		code = orcherr.CodeForbidden
	case reasonNotFound:
		code = orcherr.CodeNotFound
	case reasonQuotaExceeded:
		code = orcherr.CodeOverloaded
	case reasonInvalidArgument:
		code = orcherr.CodeInvalidArgument
	case reasonUnavailable:
		code = orcherr.CodeProviderUnavailable
	default:
		code = orcherr.CodeTransient
	}
	err := orcherr.New(code, component, message).WithOperation(operation)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}

// translateAWSError classifies an AWS SDK v2 error by HTTP status and
// known S3 error codes.
func translateAWSError(err error, component, operation string) *orcherr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return translate(reasonTransient, component, operation, "request timed out", err)
	}

	var nsk *s3types.NoSuchKey
	var nsb *s3types.NoSuchBucket
	switch {
	case errors.As(err, &nsk), errors.As(err, &nsb):
		return translate(reasonNotFound, component, operation, "object not found", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return translate(reasonNotFound, component, operation, apiErr.ErrorMessage(), err)
		case "AccessDenied", "AccessDeniedException":
			return translate(reasonPermissionDenied, component, operation, apiErr.ErrorMessage(), err)
		case "SlowDown", "TooManyRequests", "ThrottlingException", "RequestLimitExceeded":
			return translate(reasonQuotaExceeded, component, operation, apiErr.ErrorMessage(), err)
		case "InvalidArgument", "InvalidRequest":
			return translate(reasonInvalidArgument, component, operation, apiErr.ErrorMessage(), err)
		case "ServiceUnavailable", "InternalError":
			return translate(reasonUnavailable, component, operation, apiErr.ErrorMessage(), err)
		}
	}

	return translate(reasonTransient, component, operation, "transient provider error", err)
}

// translateAzureError classifies an Azure Blob Storage error.
func translateAzureError(err error, component, operation string) *orcherr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return translate(reasonTransient, component, operation, "request timed out", err)
	}

	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound), bloberror.HasCode(err, bloberror.ContainerNotFound):
		return translate(reasonNotFound, component, operation, "blob not found", err)
	case bloberror.HasCode(err, bloberror.AuthorizationFailure), bloberror.HasCode(err, bloberror.InsufficientAccountPermissions):
		return translate(reasonPermissionDenied, component, operation, "authorization failed", err)
	case bloberror.HasCode(err, bloberror.InvalidInput), bloberror.HasCode(err, bloberror.InvalidBlobOrBlock):
		return translate(reasonInvalidArgument, component, operation, "invalid request", err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusTooManyRequests:
			return translate(reasonQuotaExceeded, component, operation, respErr.ErrorCode, err)
		case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
			return translate(reasonUnavailable, component, operation, respErr.ErrorCode, err)
		case http.StatusNotFound:
			return translate(reasonNotFound, component, operation, respErr.ErrorCode, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return translate(reasonPermissionDenied, component, operation, respErr.ErrorCode, err)
		}
	}

	return translate(reasonTransient, component, operation, "transient provider error", err)
}

// translateGCPError classifies a Google Cloud Storage error.
func translateGCPError(err error, component, operation string) *orcherr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return translate(reasonTransient, component, operation, "request timed out", err)
	}
	if errors.Is(err, gcsstorage.ErrObjectNotExist) || errors.Is(err, gcsstorage.ErrBucketNotExist) {
		return translate(reasonNotFound, component, operation, "object not found", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return translate(reasonNotFound, component, operation, apiErr.Message, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return translate(reasonPermissionDenied, component, operation, apiErr.Message, err)
		case http.StatusTooManyRequests:
			return translate(reasonQuotaExceeded, component, operation, apiErr.Message, err)
		case http.StatusBadRequest:
			return translate(reasonInvalidArgument, component, operation, apiErr.Message, err)
		case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusInternalServerError:
			return translate(reasonUnavailable, component, operation, apiErr.Message, err)
		}
	}

	return translate(reasonTransient, component, operation, "transient provider error", err)
}
