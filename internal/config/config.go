package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/persona-chat/backend/internal/routing"
)

// 推理后端名称。
const (
	BackendVertex = "vertex"
	BackendArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Personas PersonaConfig
	Routing  routing.Table
	AI       AIConfig
	Session  SessionConfig
}

// Load 从环境变量（以及可选的路由 YAML 文件）加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	routes, err := loadRoutingConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Log:      loadLogConfig(),
		Personas: PersonaConfig{Path: getEnvOrDefault("PERSONAS_PATH", "json/personas_gemini.json")},
		Routing:  routes,
		AI:       ai,
		Session:  session,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
	File   string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
		File:   strings.TrimSpace(os.Getenv("LOG_FILE")),
	}
}

// PersonaConfig 描述 persona 文档位置，运行期间不可修改。
type PersonaConfig struct {
	Path string
}

// loadRoutingConfig 读取 ROUTING_CONFIG 指向的 YAML，再用环境变量覆盖。
func loadRoutingConfig() (routing.Table, error) {
	table := routing.Table{Region: "us-central1"}

	if path := strings.TrimSpace(os.Getenv("ROUTING_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return routing.Table{}, fmt.Errorf("routing config %s not found", path)
			}
			return routing.Table{}, fmt.Errorf("read routing config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &table); err != nil {
			return routing.Table{}, fmt.Errorf("invalid routing config %s: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("GCP_PROJECT_ID")); v != "" {
		table.ProjectID = v
	}
	if v := strings.TrimSpace(os.Getenv("GCP_PROJECT_NUMBER")); v != "" {
		table.ProjectNumber = v
	}
	if v := strings.TrimSpace(os.Getenv("GCP_REGION")); v != "" {
		table.Region = v
	}

	if raw := strings.TrimSpace(os.Getenv("ENDPOINT_MAP")); raw != "" {
		endpoints, err := parseEndpointMap(raw)
		if err != nil {
			return routing.Table{}, err
		}
		if table.Endpoints == nil {
			table.Endpoints = make(map[string]string, len(endpoints))
		}
		for cluster, id := range endpoints {
			table.Endpoints[cluster] = id
		}
	}

	return table, nil
}

// parseEndpointMap 解析 "Cluster=id,Cluster=id" 格式。
func parseEndpointMap(raw string) (map[string]string, error) {
	endpoints := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		cluster, id, ok := strings.Cut(entry, "=")
		cluster, id = strings.TrimSpace(cluster), strings.TrimSpace(id)
		if !ok || cluster == "" || id == "" {
			return nil, fmt.Errorf("invalid ENDPOINT_MAP entry %q, expected Cluster=endpointId", entry)
		}
		endpoints[cluster] = id
	}
	return endpoints, nil
}

// AIConfig 描述推理后端与解码参数。解码参数按部署固定，用户不可调整。
type AIConfig struct {
	Backend            string
	ServiceAccountJSON string
	ServiceAccountFile string
	Temperature        float64
	MaxOutputTokens    int
	TopK               int
	Ark                ArkConfig
}

// ArkConfig 描述火山方舟凭证。
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	BaseURL   string
	Region    string
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewArkChatModel 使用配置创建方舟模型实例，具体模型（endpoint）在每次调用时指定。
func (c AIConfig) NewArkChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Ark.Enabled() {
		return nil, fmt.Errorf("Ark 凭证缺失，至少提供 ARK_API_KEY 或 AK/SK 组合")
	}

	temperature := float32(c.Temperature)
	maxTokens := c.MaxOutputTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.Ark.BaseURL,
		Region:      c.Ark.Region,
		APIKey:      c.Ark.APIKey,
		AccessKey:   c.Ark.AccessKey,
		SecretKey:   c.Ark.SecretKey,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	cm, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}
	return cm, nil
}

func loadAIConfig() (AIConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("INFERENCE_BACKEND", BackendVertex))
	if backend != BackendVertex && backend != BackendArk {
		return AIConfig{}, fmt.Errorf("invalid INFERENCE_BACKEND value %q", backend)
	}

	temperature := 0.8
	if override, err := parseOptionalFloatEnv("GEN_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	maxTokens := 1042
	if override, err := parseOptionalIntEnv("GEN_MAX_OUTPUT_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("invalid GEN_MAX_OUTPUT_TOKENS value %d", *override)
		}
		maxTokens = *override
	}

	topK := 70
	if override, err := parseOptionalIntEnv("GEN_TOP_K"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("invalid GEN_TOP_K value %d", *override)
		}
		topK = *override
	}

	return AIConfig{
		Backend:            backend,
		ServiceAccountJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		ServiceAccountFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
		Temperature:        temperature,
		MaxOutputTokens:    maxTokens,
		TopK:               topK,
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		},
	}, nil
}

// SessionConfig 描述会话生命周期与审计日志。
type SessionConfig struct {
	IdleTimeout time.Duration
	AuditDBPath string
}

func loadSessionConfig() (SessionConfig, error) {
	idle := 30 * time.Minute
	if raw := strings.TrimSpace(os.Getenv("SESSION_IDLE_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_IDLE_TIMEOUT value %q: %w", raw, err)
		}
		if d <= 0 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_IDLE_TIMEOUT value %q", raw)
		}
		idle = d
	}

	return SessionConfig{
		IdleTimeout: idle,
		AuditDBPath: strings.TrimSpace(os.Getenv("AUDIT_DB_PATH")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
