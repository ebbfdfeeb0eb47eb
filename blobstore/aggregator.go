////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"
)

// Error messages.
const (
	buildUploadErr    = "failed to build multipart upload body: %+v"
	uploadRequestErr  = "blob upload request failed: %+v"
	uploadStatusErr   = "blob upload returned status %d: %s"
	downloadReqErr    = "download of blob %s failed: %+v"
	downloadStatusErr = "download of blob %s returned status %d"
	readBodyErr       = "failed to read storage response body: %+v"
	partCountErr      = "storage returned %d references for %d parts"
)

// AggregatorParams configures the aggregator adapter.
type AggregatorParams struct {
	// RequestTimeout bounds each HTTP request to the aggregator.
	RequestTimeout time.Duration

	// DownloadRate caps the number of parallel download requests started
	// per second.
	DownloadRate int
}

// GetDefaultAggregatorParams returns an AggregatorParams object containing
// the default values.
func GetDefaultAggregatorParams() AggregatorParams {
	return AggregatorParams{
		RequestTimeout: 30 * time.Second,
		DownloadRate:   20,
	}
}

// Aggregator stores blobs through an HTTP aggregator gateway in front of
// the decentralized storage network. All payloads of one Upload call are
// batched into a single multipart request; each stored part is addressed by
// the opaque reference extracted from the gateway's response envelope.
type Aggregator struct {
	base   string
	client *http.Client
	rl     ratelimit.Limiter
}

// NewAggregator constructs an adapter for the gateway at baseURL. Unset
// params fields take their defaults independently, so a caller may set only
// the fields they care about.
func NewAggregator(baseURL string, params AggregatorParams) *Aggregator {
	defaults := GetDefaultAggregatorParams()
	if params.RequestTimeout == 0 {
		params.RequestTimeout = defaults.RequestTimeout
	}
	if params.DownloadRate <= 0 {
		params.DownloadRate = defaults.DownloadRate
	}

	return &Aggregator{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: params.RequestTimeout},
		rl:     ratelimit.New(params.DownloadRate, ratelimit.WithoutSlack),
	}
}

// uploadEnvelope is the gateway's response to a multipart upload.
type uploadEnvelope struct {
	Parts []struct {
		Reference string `json:"reference"`
	} `json:"parts"`
}

// Upload stores every payload in one multipart PUT and returns the
// references from the response envelope, in part order. A response that
// lacks the expected shape fails with ReferenceExtractionFailedErr carrying
// the raw body.
func (a *Aggregator) Upload(ctx context.Context, payloads [][]byte) (
	[]Reference, error) {
	if len(payloads) == 0 {
		return nil, EmptyUploadErr
	}

	body := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(body)
	for _, payload := range payloads {
		part, err := writer.CreateFormFile("blob", uuid.NewString())
		if err != nil {
			return nil, errors.Errorf(buildUploadErr, err)
		}
		if _, err = part.Write(payload); err != nil {
			return nil, errors.Errorf(buildUploadErr, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Errorf(buildUploadErr, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		a.base+"/v1/blobs", body)
	if err != nil {
		return nil, errors.Errorf(uploadRequestErr, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Errorf(uploadRequestErr, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf(readBodyErr, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf(uploadStatusErr, resp.StatusCode, raw)
	}

	refs, err := extractReferences(raw, len(payloads))
	if err != nil {
		return nil, err
	}

	jww.DEBUG.Printf("[BLOB] Uploaded %d parts to aggregator", len(payloads))
	return refs, nil
}

// extractReferences pulls the per-part references out of the gateway's
// response envelope.
func extractReferences(raw []byte, parts int) ([]Reference, error) {
	var env uploadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Parts == nil {
		return nil, errors.Wrapf(ReferenceExtractionFailedErr,
			"raw response: %s", raw)
	}
	if len(env.Parts) != parts {
		return nil, errors.Wrapf(ReferenceExtractionFailedErr,
			partCountErr, len(env.Parts), parts)
	}

	refs := make([]Reference, len(env.Parts))
	for i, p := range env.Parts {
		if p.Reference == "" {
			return nil, errors.Wrapf(ReferenceExtractionFailedErr,
				"raw response: %s", raw)
		}
		refs[i] = Reference(p.Reference)
	}
	return refs, nil
}

// Download fetches each referenced blob with one GET per reference. The
// requests run in parallel under the configured rate limit; results are
// returned in reference order regardless of completion order.
func (a *Aggregator) Download(ctx context.Context, refs []Reference) (
	[][]byte, error) {
	payloads := make([][]byte, len(refs))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		eg.Go(func() error {
			a.rl.Take()
			payload, err := a.downloadOne(egCtx, ref)
			if err != nil {
				return err
			}
			payloads[i] = payload
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

func (a *Aggregator) downloadOne(ctx context.Context, ref Reference) (
	[]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.base+"/v1/blobs/"+string(ref), nil)
	if err != nil {
		return nil, errors.Errorf(downloadReqErr, ref, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Errorf(downloadReqErr, ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(BlobNotFoundErr, "reference %s", ref)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf(downloadStatusErr, ref, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf(readBodyErr, err)
	}
	return payload, nil
}
