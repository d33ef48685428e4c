package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerClient is the part of the Secrets Manager API used here
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// DBSecret is the RDS-style credential document stored in Secrets Manager
type DBSecret struct {
	Host     string   `json:"host"`
	Port     PortType `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Database string   `json:"dbname"`
}

// PortType accepts a port written as a JSON number or string
type PortType int

// UnmarshalJSON handles both string and int port values
func (p *PortType) UnmarshalJSON(data []byte) error {
	var intVal int
	if err := json.Unmarshal(data, &intVal); err == nil {
		*p = PortType(intVal)
		return nil
	}

	var strVal string
	if err := json.Unmarshal(data, &strVal); err == nil {
		intVal, err := strconv.Atoi(strVal)
		if err != nil {
			return fmt.Errorf("port string %q is not a valid integer: %w", strVal, err)
		}
		*p = PortType(intVal)
		return nil
	}

	return fmt.Errorf("port must be a string or integer, got: %s", string(data))
}

// LoadConfigFromSecretsManager fetches database credentials using the
// default AWS credential chain
func LoadConfigFromSecretsManager(ctx context.Context, secretName, sslMode string) (*Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ConfigFromSecret(ctx, secretsmanager.NewFromConfig(cfg), secretName, sslMode)
}

// ConfigFromSecret reads and validates the named secret
func ConfigFromSecret(ctx context.Context, client SecretsManagerClient, secretName, sslMode string) (*Config, error) {
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve secret %s: %w", secretName, err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", secretName)
	}

	var secret DBSecret
	if err := json.Unmarshal([]byte(*result.SecretString), &secret); err != nil {
		return nil, fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	dbConfig := &Config{
		Host:     secret.Host,
		Port:     strconv.Itoa(int(secret.Port)),
		User:     secret.Username,
		Password: secret.Password,
		Database: secret.Database,
		SSLMode:  sslMode,
	}
	if err := dbConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	return dbConfig, nil
}
