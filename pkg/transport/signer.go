package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// signingName is the SigV4 service name of the runtime endpoint.
const signingName = "bedrock"

// Signer authenticates an outgoing request. body is the exact request body.
type Signer interface {
	Sign(ctx context.Context, req *http.Request, body []byte) error
}

// SigV4Signer signs requests with AWS Signature Version 4.
type SigV4Signer struct {
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
	now         func() time.Time
}

// NewSigV4Signer resolves credentials through the default AWS chain
// (environment, shared config, SSO, instance role).
func NewSigV4Signer(ctx context.Context, region string) (*SigV4Signer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSigV4SignerWithCredentials(awsCfg.Credentials, awsCfg.Region), nil
}

// NewSigV4SignerWithCredentials signs with the given credentials provider.
func NewSigV4SignerWithCredentials(credentials aws.CredentialsProvider, region string) *SigV4Signer {
	return &SigV4Signer{
		credentials: credentials,
		region:      region,
		signer:      v4.NewSigner(),
		now:         time.Now,
	}
}

func (s *SigV4Signer) Sign(ctx context.Context, req *http.Request, body []byte) error {
	if s.credentials == nil {
		return fmt.Errorf("no AWS credentials configured")
	}
	creds, err := s.credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	sum := sha256.Sum256(body)
	if err := s.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), signingName, s.region, s.now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}

// BearerSigner authenticates with a Bedrock API key.
type BearerSigner struct {
	Token string
}

func (s BearerSigner) Sign(_ context.Context, req *http.Request, _ []byte) error {
	if s.Token == "" {
		return fmt.Errorf("empty bearer token")
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.Token))
	return nil
}
