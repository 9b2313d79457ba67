package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awsv2streams "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	awsv2xray "github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
)

type Client struct {
	db           *awsv2dynamodb.Client
	streams      *awsv2streams.Client
	tableName    string
	pollInterval time.Duration
}

func NewClient(ctx context.Context, region, tableName string, pollInterval time.Duration) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	awsv2xray.AWSV2Instrumentor(&cfg.APIOptions)
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Client{
		db:           awsv2dynamodb.NewFromConfig(cfg),
		streams:      awsv2streams.NewFromConfig(cfg),
		tableName:    tableName,
		pollInterval: pollInterval,
	}, nil
}

// Single-table key layout: role records and form documents share the table.
func rolePK(userID string) string           { return "USERROLE#" + userID }
func roleSK() string                        { return "META" }
func collectionPK(collection string) string { return "COL#" + collection }
func documentSK(id string) string           { return "DOC#" + id }

const roleEntityType = "USER_ROLE"

func isConditionalCheckFailure(err error) bool {
	var condErr *awsv2types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}
