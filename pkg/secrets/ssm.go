// Package secrets stores site credentials in AWS Systems Manager Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
)

// ParameterAPI is the subset of the SSM client used here.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSM implements Get(path)/Put(path, value) over Parameter Store SecureString parameters.
type SSM struct {
	client ParameterAPI
	prefix string
	logger *zap.Logger
}

// NewSSM creates a Parameter Store secret store. Relative paths are joined onto prefix.
func NewSSM(awsCfg aws.Config, prefix string, logger *zap.Logger) *SSM {
	return NewSSMWithClient(ssm.NewFromConfig(awsCfg), prefix, logger)
}

// NewSSMWithClient wraps an existing Parameter Store client.
func NewSSMWithClient(client ParameterAPI, prefix string, logger *zap.Logger) *SSM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSM{client: client, prefix: prefix, logger: logger}
}

func (s *SSM) name(path string) string {
	if path == "" || path[0] == '/' || s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// Get returns the decrypted parameter value. Missing parameters return apperrors.ErrNotFound.
func (s *SSM) Get(ctx context.Context, path string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name(path)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return "", fmt.Errorf("get parameter %s: %w", s.name(path), apperrors.ErrNotFound)
		}
		return "", fmt.Errorf("get parameter %s: %w", s.name(path), err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("get parameter %s: %w", s.name(path), apperrors.ErrNotFound)
	}
	return *out.Parameter.Value, nil
}

// Put writes value as a SecureString, overwriting any previous version.
func (s *SSM) Put(ctx context.Context, path, value string) error {
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(s.name(path)),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("put parameter %s: %w", s.name(path), err)
	}
	s.logger.Debug("parameter updated", zap.String("name", s.name(path)))
	return nil
}
