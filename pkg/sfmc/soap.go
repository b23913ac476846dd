package sfmc

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// soapCall sends one operation envelope and parses the response. A fault
// that indicates an expired token forces a refresh and retries exactly
// once; business faults surface immediately.
func (c *Client) soapCall(ctx context.Context, action string, message any) (*soapResponse, error) {
	resp, token, err := c.soapCallOnce(ctx, action, message)
	if err != nil {
		return nil, err
	}

	if resp.Fault != nil && isTokenExpiredFault(resp.Fault) {
		c.logger.Info("SOAP fault indicates expired token, refreshing and retrying once",
			zap.String("fault_code", resp.Fault.Code))
		c.invalidateToken(token)
		resp, _, err = c.soapCallOnce(ctx, action, message)
		if err != nil {
			return nil, err
		}
	}

	if resp.Fault != nil {
		return nil, resp.Fault
	}
	return resp, nil
}

func (c *Client) soapCallOnce(ctx context.Context, action string, message any) (*soapResponse, string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, "", err
	}

	envelope, err := buildEnvelope(token, message)
	if err != nil {
		return nil, token, err
	}

	if c.config.Debug {
		c.logger.Debug("SOAP request", zap.String("action", action), zap.ByteString("envelope", envelope))
	}

	headers := map[string]string{
		"Content-Type": "text/xml; charset=utf-8",
		"SOAPAction":   action,
	}

	resp, err := c.httpClient.Post(ctx, c.config.SoapEndpoint, headers, envelope)
	if err != nil {
		c.logger.Error("SOAP request failed", zap.String("action", action), zap.Error(err))
		return nil, token, wrapTimeout("soap "+action, err)
	}

	if c.config.Debug {
		c.logger.Debug("SOAP response", zap.Int("status_code", resp.StatusCode), zap.ByteString("envelope", resp.Body))
	}

	parsed, err := parseSoapResponse(resp.Body)
	if err != nil {
		return nil, token, err
	}

	// The partner API reports faults with a 500 status; anything else
	// without a parsed fault is a transport-level failure.
	if resp.StatusCode >= 400 && parsed.Fault == nil {
		return nil, token, &SoapFault{Message: strings.TrimSpace(string(resp.Body))}
	}

	return parsed, token, nil
}

// isTokenExpiredFault matches the platform's expired/invalid token faults.
func isTokenExpiredFault(f *SoapFault) bool {
	msg := strings.ToLower(f.Message)
	return strings.Contains(msg, "token expired") ||
		strings.Contains(msg, "invalidsecuritytoken") ||
		strings.HasSuffix(f.Code, ":Security")
}

// RetrievePage fetches one page of a Retrieve sequence. Pass a zero
// Continuation for the first page; pass the returned continuation to
// resume. This is the streaming-level API under Retrieve.
func (c *Client) RetrievePage(ctx context.Context, objectType string, properties []string, filter *SimpleFilter, cont Continuation) (*Result, error) {
	msg := retrieveRequestMsg{
		XMLNS: partnerNS,
		Request: retrieveRequest{
			ObjectType:      objectType,
			Properties:      properties,
			ContinueRequest: cont.Token(),
		},
	}
	// A continuation request resumes the server-side cursor; the filter
	// only applies to the initial request.
	if filter != nil && cont.Done() {
		msg.Request.Filter = &simpleFilterXML{
			XSIType:  "SimpleFilterPart",
			Property: filter.Property,
			Operator: filter.Operator,
			Value:    filter.Value,
		}
	}

	resp, err := c.soapCall(ctx, "Retrieve", msg)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &SoapFault{Code: resp.OverallStatus, Message: "retrieve failed with status " + resp.OverallStatus}
	}

	result := &Result{
		Records: resp.Records,
		Status:  resp.OverallStatus,
	}
	if resp.moreDataAvailable() {
		result.Continuation = More(resp.RequestID)
	}
	return result, nil
}

// Retrieve fetches records of a SOAP object type. With morerow the full
// MoreDataAvailable sequence is drained into one ordered result; without
// it the first page and its continuation are returned. Cancellation
// between pages returns what accumulated so far with Partial set.
func (c *Client) Retrieve(ctx context.Context, objectType string, properties []string, filter *SimpleFilter, morerow bool) (*Result, error) {
	c.logger.Debug("Retrieving SOAP object", zap.String("object_type", objectType), zap.Bool("morerow", morerow))

	page, err := c.RetrievePage(ctx, objectType, properties, filter, Continuation{})
	if err != nil {
		return nil, err
	}
	if !morerow {
		return page, nil
	}

	all := page.Records
	cont := page.Continuation
	for !cont.Done() {
		if ctx.Err() != nil {
			c.logger.Warn("Retrieve cancelled between pages",
				zap.String("object_type", objectType),
				zap.Int("records_so_far", len(all)))
			return &Result{Records: all, Status: "OK", Partial: true}, nil
		}

		page, err = c.RetrievePage(ctx, objectType, properties, filter, cont)
		if err != nil {
			// Cancellation mid-sequence keeps what we have.
			if ctx.Err() != nil {
				return &Result{Records: all, Status: "OK", Partial: true}, nil
			}
			return nil, err
		}
		all = append(all, page.Records...)
		cont = page.Continuation
	}

	c.logger.Info("Retrieved SOAP records",
		zap.String("object_type", objectType),
		zap.Int("count", len(all)))

	return &Result{Records: all, Status: "OK"}, nil
}

// Create creates one object of the given type.
func (c *Client) Create(ctx context.Context, objectType string, props Record) (*SaveResult, error) {
	return c.save(ctx, "Create", objectType, props)
}

// Update updates one object of the given type.
func (c *Client) Update(ctx context.Context, objectType string, props Record) (*SaveResult, error) {
	return c.save(ctx, "Update", objectType, props)
}

// Delete deletes one object of the given type.
func (c *Client) Delete(ctx context.Context, objectType string, props Record) (*SaveResult, error) {
	return c.save(ctx, "Delete", objectType, props)
}

// save drives the single-shot Create/Update/Delete operations, which
// share a body shape and have no continuation.
func (c *Client) save(ctx context.Context, operation, objectType string, props Record) (*SaveResult, error) {
	c.logger.Debug("Saving SOAP object",
		zap.String("operation", operation),
		zap.String("object_type", objectType))

	msg := saveRequestMsg{
		XMLName: xmlNameFor(operation),
		XMLNS:   partnerNS,
		Objects: soapObject{Type: objectType, Props: props},
	}

	resp, err := c.soapCall(ctx, operation, msg)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		fault := &SoapFault{Code: resp.OverallStatus, Message: operation + " failed"}
		if len(resp.SaveResults) > 0 {
			fault.Message = resp.SaveResults[0].StatusMessage
		}
		return nil, fault
	}
	if len(resp.SaveResults) == 0 {
		return &SaveResult{StatusCode: "OK"}, nil
	}

	sr := resp.SaveResults[0]
	if !strings.EqualFold(sr.StatusCode, "OK") {
		return nil, &SoapFault{Code: sr.StatusCode, Message: sr.StatusMessage}
	}
	return &sr, nil
}

// Describe returns the field metadata for a SOAP object type.
func (c *Client) Describe(ctx context.Context, objectType string) ([]FieldDefinition, error) {
	c.logger.Debug("Describing SOAP object", zap.String("object_type", objectType))

	msg := definitionRequestMsg{XMLNS: partnerNS}
	msg.DescribeRequests.ObjectDefinitionRequest.ObjectType = objectType

	resp, err := c.soapCall(ctx, "Describe", msg)
	if err != nil {
		return nil, err
	}
	return resp.Definitions, nil
}
