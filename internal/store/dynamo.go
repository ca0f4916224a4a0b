package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/chatapi"
	"github.com/fpang/medassist/internal/medapi"
)

// Key layout for the single-table design.
const (
	userPrefix    = "USER#"
	chatPrefix    = "CHAT#"
	skRecord      = "RECORD#"
	skChatPointer = "CHAT#"
	skConsult     = "CONSULT#"
	skMeta        = "META"
	skMessage     = "MSG#"

	// maxBatchWrite is the BatchWriteItem limit per call.
	maxBatchWrite = 25
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore implements Store on one DynamoDB table with string keys PK and
// SK and a TTL attribute named expiresAt.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for tableName.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// Items as stored. Keys are derived from PK/SK and kept out of the attributes
// where possible.

type recordItem struct {
	ID        string           `dynamodbav:"id"`
	UserID    string           `dynamodbav:"userId"`
	FileName  string           `dynamodbav:"fileName,omitempty"`
	ImageKey  string           `dynamodbav:"imageKey,omitempty"`
	Diagnosis medapi.Diagnosis `dynamodbav:"diagnosis"`
	CreatedAt int64            `dynamodbav:"createdAt"` // unix millis
}

type chatMetaItem struct {
	SessionID string `dynamodbav:"sessionId"`
	UserID    string `dynamodbav:"userId"`
	RecordID  string `dynamodbav:"recordId,omitempty"`
	Language  string `dynamodbav:"language,omitempty"`
	UpdatedAt int64  `dynamodbav:"updatedAt"`
}

type messageItem struct {
	Role      string `dynamodbav:"role"`
	Content   string `dynamodbav:"content"`
	CreatedAt int64  `dynamodbav:"createdAt"`
}

type consultItem struct {
	ID        string            `dynamodbav:"id"`
	UserID    string            `dynamodbav:"userId"`
	Message   string            `dynamodbav:"message"`
	Reply     string            `dynamodbav:"reply"`
	Language  string            `dynamodbav:"language,omitempty"`
	Diagnosis *medapi.Diagnosis `dynamodbav:"diagnosis,omitempty"`
	CreatedAt int64             `dynamodbav:"createdAt"`
}

func userPK(userID string) string    { return userPrefix + Owner(userID) }
func chatPK(sessionID string) string { return chatPrefix + sessionID }

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// --- Internal helpers ---

// marshalItem marshals data with PK, SK and, unless expires is zero, an
// expiresAt attribute.
func marshalItem(pk, sk string, data any, expires time.Time) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	setExpiry(item, expires)
	return item, nil
}

func setExpiry(item map[string]types.AttributeValue, expires time.Time) {
	if !expires.IsZero() {
		item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires.Unix(), 10)}
	}
}

func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data any, expires time.Time) error {
	item, err := marshalItem(pk, sk, data, expires)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads one item into out. It returns false when the item is absent.
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out any) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       key(pk, sk),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// deleteItem removes one item and reports whether it existed.
func (s *DynamoStore) deleteItem(ctx context.Context, pk, sk string) (bool, error) {
	result, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          key(pk, sk),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("DeleteItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return len(result.Attributes) > 0, nil
}

// queryBySKPrefix returns every item in partition pk whose SK begins with
// skPrefix, in SK order.
func (s *DynamoStore) queryBySKPrefix(ctx context.Context, pk, skPrefix string) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: skPrefix},
		},
	}

	var items []map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, skPrefix, err)
		}
		items = append(items, result.Items...)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return items, nil
}

// batchPut writes whole items in chunks of maxBatchWrite.
func (s *DynamoStore) batchPut(ctx context.Context, items []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	return s.batchWrite(ctx, "put", requests)
}

// batchDelete removes items by key in chunks of maxBatchWrite. Unprocessed
// items are resubmitted once.
func (s *DynamoStore) batchDelete(ctx context.Context, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
	}
	return s.batchWrite(ctx, "delete", requests)
}

func (s *DynamoStore) batchWrite(ctx context.Context, op string, requests []types.WriteRequest) error {
	for i := 0; i < len(requests); i += maxBatchWrite {
		end := min(i+maxBatchWrite, len(requests))
		pending := map[string][]types.WriteRequest{s.tableName: requests[i:end]}
		for attempt := 0; attempt < 2 && len(pending[s.tableName]) > 0; attempt++ {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("BatchWriteItem %s (%d items): %w", op, len(pending[s.tableName]), err)
			}
			pending = out.UnprocessedItems
		}
		if n := len(pending[s.tableName]); n > 0 {
			log.Warn().Str("op", op).Int("unprocessed", n).Msg("Batch write left items unprocessed")
		}
	}
	return nil
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// --- Records ---

func (s *DynamoStore) PutRecord(ctx context.Context, rec *medapi.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	item := recordItem{
		ID:        rec.ID,
		UserID:    Owner(rec.UserID),
		FileName:  rec.FileName,
		ImageKey:  rec.ImageKey,
		Diagnosis: rec.Diagnosis,
		CreatedAt: millis(rec.CreatedAt),
	}
	return s.putItem(ctx, userPK(rec.UserID), skRecord+rec.ID, item, time.Time{})
}

func (s *DynamoStore) GetRecord(ctx context.Context, userID, id string) (*medapi.Record, error) {
	var item recordItem
	found, err := s.getItem(ctx, userPK(userID), skRecord+id, &item)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	rec := item.toRecord()
	return &rec, nil
}

func (s *DynamoStore) ListRecords(ctx context.Context, userID string) ([]medapi.Record, error) {
	items, err := s.queryBySKPrefix(ctx, userPK(userID), skRecord)
	if err != nil {
		return nil, err
	}
	out := make([]medapi.Record, 0, len(items))
	for _, raw := range items {
		var item recordItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			log.Warn().Err(err).Str("sk", stringAttr(raw, "SK")).Msg("Skipping undecodable record")
			continue
		}
		out = append(out, item.toRecord())
	}
	sortRecords(out)
	return out, nil
}

func (s *DynamoStore) DeleteRecord(ctx context.Context, userID, id string) error {
	existed, err := s.deleteItem(ctx, userPK(userID), skRecord+id)
	if err != nil {
		return err
	}
	if !existed {
		return ErrNotFound
	}
	return nil
}

func (r recordItem) toRecord() medapi.Record {
	return medapi.Record{
		ID:        r.ID,
		UserID:    r.UserID,
		FileName:  r.FileName,
		ImageKey:  r.ImageKey,
		Diagnosis: r.Diagnosis,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

// --- Chats ---

func (s *DynamoStore) GetChat(ctx context.Context, sessionID string) (*medapi.ChatSession, error) {
	var meta chatMetaItem
	found, err := s.getItem(ctx, chatPK(sessionID), skMeta, &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	items, err := s.queryBySKPrefix(ctx, chatPK(sessionID), skMessage)
	if err != nil {
		return nil, err
	}
	chat := meta.toSession()
	for _, raw := range items {
		var m messageItem
		if err := attributevalue.UnmarshalMap(raw, &m); err != nil {
			return nil, fmt.Errorf("unmarshal message %s: %w", stringAttr(raw, "SK"), err)
		}
		chat.Messages = append(chat.Messages, medapi.ChatMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: fromMillis(m.CreatedAt),
		})
	}
	return &chat, nil
}

func (s *DynamoStore) AppendMessages(ctx context.Context, chat *medapi.ChatSession, msgs ...medapi.ChatMessage) error {
	now := time.Now().UTC()
	meta := chatMetaItem{
		SessionID: chat.SessionID,
		UserID:    Owner(chat.UserID),
		RecordID:  chat.RecordID,
		Language:  chat.Language,
		UpdatedAt: millis(now),
	}
	// Every item of the conversation is re-stamped with one expiry, so older
	// turns live exactly as long as the metadata.
	expires := now.Add(ChatTTL)
	if err := s.putItem(ctx, chatPK(chat.SessionID), skMeta, meta, expires); err != nil {
		return err
	}
	// The pointer lets ListChats find the conversation from the owner's partition.
	if err := s.putItem(ctx, userPK(chat.UserID), skChatPointer+chat.SessionID, meta, expires); err != nil {
		return err
	}

	items, err := s.queryBySKPrefix(ctx, chatPK(chat.SessionID), skMessage)
	if err != nil {
		return err
	}
	for _, item := range items {
		setExpiry(item, expires)
	}
	for i, m := range msgs {
		created := m.CreatedAt
		if created.IsZero() {
			created = now
		}
		sk := fmt.Sprintf("%s%020d#%03d", skMessage, created.UnixNano(), i)
		item, err := marshalItem(chatPK(chat.SessionID), sk,
			messageItem{Role: m.Role, Content: m.Content, CreatedAt: millis(created)}, expires)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	return s.batchPut(ctx, items)
}

func (s *DynamoStore) ListChats(ctx context.Context, userID string) ([]medapi.ChatSession, error) {
	pointers, err := s.queryBySKPrefix(ctx, userPK(userID), skChatPointer)
	if err != nil {
		return nil, err
	}
	out := make([]medapi.ChatSession, 0, len(pointers))
	for _, raw := range pointers {
		var meta chatMetaItem
		if err := attributevalue.UnmarshalMap(raw, &meta); err != nil {
			log.Warn().Err(err).Str("sk", stringAttr(raw, "SK")).Msg("Skipping undecodable chat pointer")
			continue
		}
		chat, err := s.GetChat(ctx, meta.SessionID)
		if errors.Is(err, ErrNotFound) {
			continue // expired by TTL before its pointer
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *chat)
	}
	sortChats(out)
	return out, nil
}

func (s *DynamoStore) DeleteChat(ctx context.Context, sessionID string) error {
	var meta chatMetaItem
	found, err := s.getItem(ctx, chatPK(sessionID), skMeta, &meta)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	items, err := s.queryBySKPrefix(ctx, chatPK(sessionID), skMessage)
	if err != nil {
		return err
	}
	keys := make([]map[string]types.AttributeValue, 0, len(items)+2)
	for _, raw := range items {
		keys = append(keys, key(chatPK(sessionID), stringAttr(raw, "SK")))
	}
	keys = append(keys,
		key(chatPK(sessionID), skMeta),
		key(userPK(meta.UserID), skChatPointer+sessionID),
	)
	return s.batchDelete(ctx, keys)
}

func (m chatMetaItem) toSession() medapi.ChatSession {
	return medapi.ChatSession{
		SessionID: m.SessionID,
		UserID:    m.UserID,
		RecordID:  m.RecordID,
		Language:  m.Language,
		Messages:  []medapi.ChatMessage{},
		UpdatedAt: fromMillis(m.UpdatedAt),
	}
}

// --- Consult log ---

func (s *DynamoStore) PutConsult(ctx context.Context, rec *chatapi.ChatRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	item := consultItem{
		ID:        rec.ID,
		UserID:    Owner(rec.UserID),
		Message:   rec.Message,
		Reply:     rec.Reply,
		Language:  rec.Language,
		Diagnosis: rec.Diagnosis,
		CreatedAt: millis(rec.CreatedAt),
	}
	sk := fmt.Sprintf("%s%020d#%s", skConsult, rec.CreatedAt.UnixNano(), rec.ID)
	return s.putItem(ctx, userPK(rec.UserID), sk, item, time.Time{})
}

func (s *DynamoStore) ListConsults(ctx context.Context, userID string) ([]chatapi.ChatRecord, error) {
	items, err := s.queryBySKPrefix(ctx, userPK(userID), skConsult)
	if err != nil {
		return nil, err
	}
	out := make([]chatapi.ChatRecord, 0, len(items))
	for _, raw := range items {
		var item consultItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			log.Warn().Err(err).Str("sk", stringAttr(raw, "SK")).Msg("Skipping undecodable consult entry")
			continue
		}
		out = append(out, chatapi.ChatRecord{
			ID:        item.ID,
			UserID:    item.UserID,
			Message:   item.Message,
			Reply:     item.Reply,
			Language:  item.Language,
			Diagnosis: item.Diagnosis,
			CreatedAt: fromMillis(item.CreatedAt),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
