package kafka

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

const (
	INSERT = "INSERT"
	UPDATE = "UPDATE"
	DELETE = "DELETE"
)

var (
	ErrTableMismatch = errors.New("table name not match")
	ErrEmptyData     = errors.New("data is empty")
)

// CanalMessage Canal 推送到 Kafka 的 JSON 数据结构，只保留用到的字段
type CanalMessage struct {
	ID       int64  `json:"id"`
	Database string `json:"database"`
	Table    string `json:"table"`
	IsDDL    bool   `json:"isDdl"`
	Type     string `json:"type"`
	ES       int64  `json:"es"`
	TS       int64  `json:"ts"`

	// Data 变更后的行，Canal 把所有列值编码为字符串
	Data []map[string]interface{} `json:"data"`

	// Old 变更前被修改的列
	Old []map[string]interface{} `json:"old"`
}

// ToCanalMessage 将 kafka 消息转换为 canal 消息结构体
func ToCanalMessage(msg *sarama.ConsumerMessage, tableName string) (*CanalMessage, error) {
	var canalMsg CanalMessage
	if err := json.Unmarshal(msg.Value, &canalMsg); err != nil {
		return nil, fmt.Errorf("unmarshal canal message: %w", err)
	}
	if canalMsg.Table != tableName {
		return nil, ErrTableMismatch
	}
	if len(canalMsg.Data) == 0 {
		return nil, ErrEmptyData
	}
	return &canalMsg, nil
}

// rowUint64 读取一列无符号整数，兼容字符串与数字两种编码
func rowUint64(row map[string]interface{}, column string) (uint64, error) {
	switch v := row[column].(type) {
	case string:
		return strconv.ParseUint(v, 10, 64)
	case float64:
		return uint64(v), nil
	case nil:
		return 0, fmt.Errorf("column %s is missing", column)
	default:
		return 0, fmt.Errorf("column %s has unexpected type %T", column, v)
	}
}
