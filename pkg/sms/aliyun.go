package sms

import (
	"context"
	"encoding/json"
	"fmt"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	openapiutil "github.com/alibabacloud-go/openapi-util/service"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
	"go.uber.org/zap"

	"DeadManSwitch/pkg/errors"
	"DeadManSwitch/pkg/logger"
)

type AliyunClient struct {
	client *openapi.Client
}

// NewAliyunClient 创建阿里云 SMS 客户端
// 凭据从环境变量获取：ALIBABA_CLOUD_ACCESS_KEY_ID 和 ALIBABA_CLOUD_ACCESS_KEY_SECRET
func NewAliyunClient() (*AliyunClient, error) {
	cred, err := credential.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun credential: %w", err)
	}

	client, err := openapi.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String("dysmsapi.aliyuncs.com"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun client: %w", err)
	}

	return &AliyunClient{client: client}, nil
}

func (c *AliyunClient) createApiInfo(action string) *openapi.Params {
	return &openapi.Params{
		Action:      tea.String(action),
		Version:     tea.String("2017-05-25"),
		Protocol:    tea.String("HTTPS"),
		Method:      tea.String("POST"),
		AuthType:    tea.String("AK"),
		Style:       tea.String("RPC"),
		Pathname:    tea.String("/"),
		ReqBodyType: tea.String("json"),
		BodyType:    tea.String("json"),
	}
}

// SendBatch 调用 SendBatchSms，签名与参数按号码数量展开为 JSON 数组
func (c *AliyunClient) SendBatch(ctx context.Context, phones []string, signName, templateCode, templateParam string) error {
	queries, err := BuildBatchQuery(phones, signName, templateCode, templateParam)
	if err != nil {
		return err
	}

	request := &openapi.OpenApiRequest{
		Query: openapiutil.Query(queries),
	}

	resp, err := c.client.CallApi(c.createApiInfo("SendBatchSms"), request, &util.RuntimeOptions{})
	if err != nil {
		logger.Logger.Error("Failed to send batch SMS",
			zap.Int("count", len(phones)),
			zap.String("template", templateCode),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send batch SMS: %w", err)
	}

	if err := checkResponse(resp); err != nil {
		logger.Logger.Error("Batch SMS send failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Batch SMS sent successfully",
		zap.Int("count", len(phones)),
		zap.String("template", templateCode),
	)
	return nil
}

// BuildBatchQuery 构建 SendBatchSms 的查询参数
func BuildBatchQuery(phones []string, signName, templateCode, templateParam string) (map[string]interface{}, error) {
	if signName == "" {
		return nil, errors.SignNameRequired
	}
	if templateCode == "" {
		return nil, errors.TemplateCodeRequired
	}
	if len(phones) == 0 {
		return nil, errors.RecipientsRequired
	}
	if templateParam == "" {
		templateParam = "{}"
	}
	if !json.Valid([]byte(templateParam)) {
		return nil, fmt.Errorf("template param is not valid JSON: %q", templateParam)
	}

	signNames := make([]string, len(phones))
	params := make([]string, len(phones))
	for i := range phones {
		signNames[i] = signName
		params[i] = templateParam
	}

	phonesJSON, err := json.Marshal(phones)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal phone numbers: %w", err)
	}
	signNamesJSON, err := json.Marshal(signNames)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sign names: %w", err)
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template params: %w", err)
	}

	return map[string]interface{}{
		"PhoneNumberJson":   tea.String(string(phonesJSON)),
		"SignNameJson":      tea.String(string(signNamesJSON)),
		"TemplateCode":      tea.String(templateCode),
		"TemplateParamJson": tea.String(string(paramsJSON)),
	}, nil
}

// checkResponse 校验 HTTP 状态码与业务 Code
func checkResponse(resp map[string]interface{}) error {
	if raw, ok := resp["statusCode"]; ok && raw != nil {
		statusCode, err := parseStatusCode(raw)
		if err != nil {
			return err
		}
		if statusCode != 200 {
			return fmt.Errorf("SMS API error: statusCode=%d", statusCode)
		}
	}

	if resp["body"] == nil {
		return nil
	}

	bodyBytes, err := json.Marshal(resp["body"])
	if err != nil {
		return fmt.Errorf("failed to marshal SMS response body: %w", err)
	}
	var body struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return fmt.Errorf("failed to parse SMS response body: %w", err)
	}
	if body.Code != "" && body.Code != "OK" {
		return fmt.Errorf("SMS send failed: %s - %s", body.Code, body.Message)
	}
	return nil
}

// parseStatusCode SDK 在不同版本里返回 int、int32 或 *int32
func parseStatusCode(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case *int32:
		if v == nil {
			return 0, fmt.Errorf("nil statusCode")
		}
		return int(*v), nil
	default:
		return 0, fmt.Errorf("unexpected statusCode type %T", raw)
	}
}
