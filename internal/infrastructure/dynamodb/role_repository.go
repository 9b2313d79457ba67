package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-xray-sdk-go/xray"
	"ops-portal/internal/domain"
	"ops-portal/internal/ports"
)

// RoleRecordRepository stores one role record per user identity under
// PK=USERROLE#<uid>. It owns the canonical on-disk representation: writes
// always persist the sorted token list, while reads tolerate every legacy
// shape by folding the raw attribute through the normalizer.
type RoleRecordRepository struct {
	client *Client
	logger ports.Logger
}

func NewRoleRecordRepository(client *Client, logger ports.Logger) *RoleRecordRepository {
	return &RoleRecordRepository{client: client, logger: logger}
}

func (r *RoleRecordRepository) GetRole(ctx context.Context, userID string) (domain.RoleRecord, error) {
	var out *awsv2dynamodb.GetItemOutput
	err := xray.Capture(ctx, "DynamoDB.GetRoleRecord", func(ctx context.Context) error {
		var e error
		out, e = r.client.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName: aws.String(r.client.tableName),
			Key: map[string]awsv2types.AttributeValue{
				"PK": &awsv2types.AttributeValueMemberS{Value: rolePK(userID)},
				"SK": &awsv2types.AttributeValueMemberS{Value: roleSK()},
			},
		})
		return e
	})
	if err != nil {
		return domain.RoleRecord{}, err
	}
	if out.Item == nil {
		return domain.RoleRecord{}, domain.ErrNotFound
	}
	return decodeRoleItem(userID, out.Item)
}

func (r *RoleRecordRepository) CreateRole(ctx context.Context, userID string, role domain.RoleTag) (domain.RoleRecord, error) {
	now := time.Now().UTC()
	rec := domain.RoleRecord{
		UserID:          userID,
		Role:            role,
		Permissions:     domain.DefaultPermissions(role),
		CreatedAt:       now,
		UpdatedAt:       now,
		StoredCanonical: true,
	}
	item := map[string]any{
		"PK":          rolePK(userID),
		"SK":          roleSK(),
		"EntityType":  roleEntityType,
		"UserID":      userID,
		"Role":        string(role),
		"Permissions": rec.Permissions.Tokens(),
		"CreatedAt":   now.Format(time.RFC3339),
		"UpdatedAt":   now.Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return domain.RoleRecord{}, err
	}
	err = xray.Capture(ctx, "DynamoDB.PutRoleRecord", func(ctx context.Context) error {
		_, err := r.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName:           aws.String(r.client.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		})
		return err
	})
	if isConditionalCheckFailure(err) {
		return domain.RoleRecord{}, domain.ErrAlreadyExists
	}
	if err != nil {
		return domain.RoleRecord{}, err
	}
	return rec, nil
}

func (r *RoleRecordRepository) UpdatePermissions(ctx context.Context, userID string, perms domain.PermissionSet) error {
	permissionsAV, err := attributevalue.Marshal(perms.Tokens())
	if err != nil {
		return err
	}
	return xray.Capture(ctx, "DynamoDB.UpdateRolePermissions", func(ctx context.Context) error {
		_, err := r.client.db.UpdateItem(ctx, &awsv2dynamodb.UpdateItemInput{
			TableName: aws.String(r.client.tableName),
			Key: map[string]awsv2types.AttributeValue{
				"PK": &awsv2types.AttributeValueMemberS{Value: rolePK(userID)},
				"SK": &awsv2types.AttributeValueMemberS{Value: roleSK()},
			},
			// PERMISSIONS is reserved in update expressions, same as ROLE.
			UpdateExpression: aws.String("SET #p = :p, UpdatedAt = :u"),
			ExpressionAttributeNames: map[string]string{
				"#p": "Permissions",
			},
			ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
				":p": permissionsAV,
				":u": &awsv2types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			},
			ConditionExpression: aws.String("attribute_exists(PK)"),
		})
		if isConditionalCheckFailure(err) {
			return domain.ErrNotFound
		}
		return err
	})
}

func (r *RoleRecordRepository) UpdateRole(ctx context.Context, userID string, role domain.RoleTag) error {
	return xray.Capture(ctx, "DynamoDB.UpdateRoleTag", func(ctx context.Context) error {
		_, err := r.client.db.UpdateItem(ctx, &awsv2dynamodb.UpdateItemInput{
			TableName: aws.String(r.client.tableName),
			Key: map[string]awsv2types.AttributeValue{
				"PK": &awsv2types.AttributeValueMemberS{Value: rolePK(userID)},
				"SK": &awsv2types.AttributeValueMemberS{Value: roleSK()},
			},
			UpdateExpression: aws.String("SET #r = :r, UpdatedAt = :u"),
			ExpressionAttributeNames: map[string]string{
				"#r": "Role",
			},
			ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
				":r": &awsv2types.AttributeValueMemberS{Value: string(role)},
				":u": &awsv2types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			},
			ConditionExpression: aws.String("attribute_exists(PK)"),
		})
		if isConditionalCheckFailure(err) {
			return domain.ErrNotFound
		}
		return err
	})
}

func (r *RoleRecordRepository) ListAll(ctx context.Context, fn func(domain.RoleRecord) error) error {
	var startKey map[string]awsv2types.AttributeValue
	for {
		var out *awsv2dynamodb.ScanOutput
		err := xray.Capture(ctx, "DynamoDB.ScanRoleRecords", func(ctx context.Context) error {
			var e error
			out, e = r.client.db.Scan(ctx, &awsv2dynamodb.ScanInput{
				TableName:        aws.String(r.client.tableName),
				FilterExpression: aws.String("EntityType = :t"),
				ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
					":t": &awsv2types.AttributeValueMemberS{Value: roleEntityType},
				},
				ExclusiveStartKey: startKey,
			})
			return e
		})
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			rec, err := decodeRoleItem("", item)
			if err != nil {
				r.logger.Warn(ctx, "skipping undecodable role record", "error", err)
				continue
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		if out.LastEvaluatedKey == nil {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// rawRoleItem is the stored attribute layout. Permissions is an untyped
// field on purpose: records written years ago carry legacy shapes and the
// normalizer folds whatever is found.
type rawRoleItem struct {
	UserID      string `dynamodbav:"UserID"`
	Role        string `dynamodbav:"Role"`
	Permissions any    `dynamodbav:"Permissions"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
}

func roleRecordFromRaw(userID string, raw rawRoleItem) domain.RoleRecord {
	if userID == "" {
		userID = raw.UserID
	}
	perms := domain.NormalizePermissions(raw.Permissions)
	createdAt, _ := time.Parse(time.RFC3339, raw.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, raw.UpdatedAt)
	return domain.RoleRecord{
		UserID:          userID,
		Role:            domain.ParseRoleTag(raw.Role),
		Permissions:     perms,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		StoredCanonical: storedCanonically(raw.Permissions, perms),
	}
}

func decodeRoleItem(userID string, item map[string]awsv2types.AttributeValue) (domain.RoleRecord, error) {
	var raw rawRoleItem
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return domain.RoleRecord{}, err
	}
	return roleRecordFromRaw(userID, raw), nil
}

// storedCanonically reports whether the raw stored value was already the
// canonical token list: a flat string array, no duplicates, every entry
// identical to its normalized form.
func storedCanonically(raw any, canonical domain.PermissionSet) bool {
	list, ok := raw.([]any)
	if !ok {
		return false
	}
	if len(list) != len(canonical) {
		return false
	}
	for _, v := range list {
		token, ok := v.(string)
		if !ok || token != domain.ActionToken(token) {
			return false
		}
	}
	return true
}
