package sign

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
)

// obtainTimestampToken returns a DER encoded RFC 3161 token over the
// given message. A configured callback takes precedence over the HTTP
// authority.
func (context *SignContext) obtainTimestampToken(message []byte) ([]byte, error) {
	if fn := context.SignData.TimestampFunction; fn != nil {
		hash := context.SignData.DigestAlgorithm.New()
		hash.Write(message)

		token, err := fn(hash.Sum(nil), context.SignData.DigestAlgorithm)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTimestampAuthority, err)
		}
		if _, err := pkcs7.Parse(token); err != nil {
			return nil, fmt.Errorf("%w: parse timestamp token: %w", ErrTimestampAuthority, err)
		}
		return token, nil
	}

	timestamp_response, err := context.GetTSA(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimestampAuthority, err)
	}

	return parseTimestampResponse(timestamp_response)
}

// GetTSA requests a timestamp over the given content from the
// configured authority and returns the raw response body.
func (context *SignContext) GetTSA(sign_content []byte) (timestamp_response []byte, err error) {
	sign_reader := bytes.NewReader(sign_content)
	ts_request, err := timestamp.CreateRequest(sign_reader, &timestamp.RequestOptions{
		Hash:         context.SignData.DigestAlgorithm,
		Certificates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return context.sendTimestampRequest(ts_request)
}

// createDocumentTimestamp produces the container of a document level
// timestamp, the raw token over the frozen byte range.
func (context *SignContext) createDocumentTimestamp() ([]byte, error) {
	if !context.timestampEnabled() {
		return nil, errors.New("document timestamps need a timestamp authority or callback")
	}

	if fn := context.SignData.TimestampFunction; fn != nil {
		digest, err := context.Digest()
		if err != nil {
			return nil, err
		}

		token, err := fn(digest, context.SignData.DigestAlgorithm)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTimestampAuthority, err)
		}
		if _, err := pkcs7.Parse(token); err != nil {
			return nil, fmt.Errorf("%w: parse timestamp token: %w", ErrTimestampAuthority, err)
		}
		return token, nil
	}

	range_reader, err := context.RangeReader()
	if err != nil {
		return nil, err
	}

	ts_request, err := timestamp.CreateRequest(range_reader, &timestamp.RequestOptions{
		Hash:         context.SignData.DigestAlgorithm,
		Certificates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrTimestampAuthority, err)
	}

	timestamp_response, err := context.sendTimestampRequest(ts_request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimestampAuthority, err)
	}

	return parseTimestampResponse(timestamp_response)
}

func (context *SignContext) sendTimestampRequest(ts_request []byte) ([]byte, error) {
	ts_request_reader := bytes.NewReader(ts_request)
	req, err := http.NewRequest("POST", context.SignData.TSA.URL, ts_request_reader)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare request (%s): %w", context.SignData.TSA.URL, err)
	}

	req.Header.Add("Content-Type", "application/timestamp-query")
	req.Header.Add("Content-Transfer-Encoding", "binary")

	if context.SignData.TSA.Username != "" && context.SignData.TSA.Password != "" {
		req.SetBasicAuth(context.SignData.TSA.Username, context.SignData.TSA.Password)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	code := 0

	if resp != nil {
		code = resp.StatusCode
	}

	if err != nil || (code < 200 || code > 299) {
		if err == nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return nil, errors.New("non success response (" + strconv.Itoa(code) + "): " + string(body))
		}

		return nil, errors.New("non success response (" + strconv.Itoa(code) + ")")
	}

	defer resp.Body.Close()
	timestamp_response_body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return timestamp_response_body, nil
}

func parseTimestampResponse(timestamp_response []byte) ([]byte, error) {
	ts, err := timestamp.ParseResponse(timestamp_response)
	if err != nil {
		return nil, fmt.Errorf("%w: parse timestamp: %w", ErrTimestampAuthority, err)
	}

	if _, err := pkcs7.Parse(ts.RawToken); err != nil {
		return nil, fmt.Errorf("%w: parse timestamp token: %w", ErrTimestampAuthority, err)
	}

	return ts.RawToken, nil
}
