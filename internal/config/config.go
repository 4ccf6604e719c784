package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// 支持的源类型。
const (
	SourceMySQL   = "mysql"
	SourceMongoDB = "mongodb"
	SourceCSV     = "csv"
	SourceXLSX    = "xlsx"
)

// DatabaseInfo 对应 'database' 部分，描述要构建的图数据库。
type DatabaseInfo struct {
	Name    string `yaml:"name"`    // 图数据库名称
	Version string `yaml:"version"` // 版本号 (与名称一起构成暂存文件名)
	Author  string `yaml:"author"`  // 作者/维护者
}

// MySQLConfig 定义了 MySQL 源数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MongoConfig 定义了 MongoDB 源数据库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址 (mongodb:// URI)
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	SampleSize int    `yaml:"sampleSize"` // 推断字段类型时抽样的文档数量
}

// FileConfig 定义了平面文件源 (CSV / XLSX) 的配置。
type FileConfig struct {
	Path      string `yaml:"path"`      // 本地路径、glob 模式或 minio://bucket/key
	Delimiter string `yaml:"delimiter"` // CSV 分隔符 (默认 ",")
	Sheet     string `yaml:"sheet"`     // XLSX 工作表名称 (默认第一个)
}

// SourceConfig 描述一个已命名的数据源。Type 决定哪个子配置生效。
type SourceConfig struct {
	Type  string      `yaml:"type"`            // "mysql" | "mongodb" | "csv" | "xlsx"
	MySQL MySQLConfig `yaml:"mysql,omitempty"` // MySQL 连接配置
	Mongo MongoConfig `yaml:"mongodb,omitempty"`
	File  FileConfig  `yaml:"file,omitempty"`
}

// NodeSourceConfig 将一个节点类型绑定到某个源中的一张表/集合/文件。
type NodeSourceConfig struct {
	Table  string            `yaml:"table"`            // 表名、集合名或文件路径覆盖
	IDKey  string            `yaml:"idKey"`            // 源内主键列
	URIKey string            `yaml:"uriKey"`           // 全局唯一 URI 列 (节点身份)
	Fields []string          `yaml:"fields,omitempty"` // 可选: 只提取这些列
	Rename map[string]string `yaml:"rename,omitempty"` // 可选: 列重命名 (源列 -> 图属性)
}

// NodeConfig 描述一个节点类型及其全部来源。
type NodeConfig struct {
	Sources map[string]NodeSourceConfig `yaml:"sources"` // 键为 sources 中的源名称
}

// RelSourceConfig 将一个关系类型绑定到某个源中的一张表。
type RelSourceConfig struct {
	Table    string            `yaml:"table"`
	StartKey string            `yaml:"startKey"` // 起始节点 URI 所在列
	EndKey   string            `yaml:"endKey"`   // 结束节点 URI 所在列
	Fields   []string          `yaml:"fields,omitempty"`
	Rename   map[string]string `yaml:"rename,omitempty"`
}

// RelConfig 描述一个关系类型及其全部来源。
type RelConfig struct {
	StartNode string                     `yaml:"startNode"` // 起始节点类型标签
	EndNode   string                     `yaml:"endNode"`   // 结束节点类型标签
	Sources   map[string]RelSourceConfig `yaml:"sources"`
}

// StagingConfig 定义了本地暂存数据库的配置。
type StagingConfig struct {
	Path      string `yaml:"path"`      // 暂存文件路径 (默认 "<name>-<version>.db")
	BatchSize int    `yaml:"batchSize"` // 每个事务写入的行数 (默认 500)
}

// Neo4jConfig 定义了 Neo4j 图数据库的连接配置。
type Neo4jConfig struct {
	Uri       string `yaml:"uri"`       // Neo4j 数据库URI (例如: "bolt://localhost:7687")
	Username  string `yaml:"username"`  // 用户名
	Password  string `yaml:"password"`  // 密码
	Database  string `yaml:"database"`  // 数据库名称
	BatchSize int    `yaml:"batchSize"` // 每批 UNWIND 的行数 (默认 1000)
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置 (远程平面文件)。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// RedisConfig 定义了 Redis 的连接配置 (可选的去重集合)。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// KafkaConfig 定义了 Kafka 的连接配置 (可选的构建事件流)。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topic   string   `yaml:"topic"`   // 构建事件主题 (默认 "graphetl_events")
}

// ThrottleConfig 限制从源读取的速率，避免压垮生产数据库。
type ThrottleConfig struct {
	RowsPerSecond float64 `yaml:"rowsPerSecond"` // 0 表示不限速
	Burst         int     `yaml:"burst"`         // 令牌桶容量 (默认 = rowsPerSecond)
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// Config 是整个 YAML 文件的根结构。
type Config struct {
	Database      DatabaseInfo            `yaml:"database"`
	Sources       map[string]SourceConfig `yaml:"sources"`
	Nodes         map[string]NodeConfig   `yaml:"nodes"`
	Relationships map[string]RelConfig    `yaml:"relationships"`
	Staging       StagingConfig           `yaml:"staging"`
	Neo4j         Neo4jConfig             `yaml:"neo4j"`
	MinIO         *MinIOConfig            `yaml:"minio,omitempty"`
	Redis         *RedisConfig            `yaml:"redis,omitempty"`
	Kafka         *KafkaConfig            `yaml:"kafka,omitempty"`
	Throttle      ThrottleConfig          `yaml:"throttle"`
	Logger        LoggerConfig            `yaml:"logger"`
}

// Load 从指定路径加载并解析 YAML 配置文件，随后填充默认值。
func Load(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults 填充所有省略字段的默认值。
func (c *Config) applyDefaults() {
	if c.Staging.Path == "" {
		c.Staging.Path = fmt.Sprintf("%s-%s.db", c.Database.Name, c.Database.Version)
	}
	if c.Staging.BatchSize <= 0 {
		c.Staging.BatchSize = 500
	}
	if c.Neo4j.BatchSize <= 0 {
		c.Neo4j.BatchSize = 1000
	}
	if c.Kafka != nil && c.Kafka.Topic == "" {
		c.Kafka.Topic = "graphetl_events"
	}
	if c.Throttle.RowsPerSecond > 0 && c.Throttle.Burst <= 0 {
		c.Throttle.Burst = int(c.Throttle.RowsPerSecond)
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	for name, src := range c.Sources {
		switch src.Type {
		case SourceMongoDB:
			if src.Mongo.SampleSize <= 0 {
				src.Mongo.SampleSize = 100
			}
		case SourceCSV:
			if src.File.Delimiter == "" {
				src.File.Delimiter = ","
			}
		}
		c.Sources[name] = src
	}
}

// Validate 对配置做一致性检查，并把所有问题聚合成一个错误返回。
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Name == "" {
		problems = append(problems, "database.name 不能为空")
	}
	if len(c.Nodes) == 0 {
		problems = append(problems, "至少需要配置一个节点类型")
	}

	for name, src := range c.Sources {
		switch src.Type {
		case SourceMySQL, SourceMongoDB, SourceCSV, SourceXLSX:
		default:
			problems = append(problems, fmt.Sprintf("源 '%s' 的类型 '%s' 不受支持", name, src.Type))
		}
	}

	// 节点: 每个来源必须存在，且必须声明 uriKey。
	for label, node := range c.Nodes {
		if len(node.Sources) == 0 {
			problems = append(problems, fmt.Sprintf("节点类型 '%s' 没有配置任何来源", label))
		}
		for srcName, binding := range node.Sources {
			if _, ok := c.Sources[srcName]; !ok {
				problems = append(problems, fmt.Sprintf("节点类型 '%s' 引用了未定义的源 '%s'", label, srcName))
			}
			if binding.URIKey == "" {
				problems = append(problems, fmt.Sprintf("节点类型 '%s' 的源 '%s' 缺少 uriKey", label, srcName))
			}
		}
	}

	// 关系: 起止节点类型和来源都必须存在。
	for relType, rel := range c.Relationships {
		if _, ok := c.Nodes[rel.StartNode]; !ok {
			problems = append(problems, fmt.Sprintf("关系类型 '%s' 的 startNode '%s' 未定义", relType, rel.StartNode))
		}
		if _, ok := c.Nodes[rel.EndNode]; !ok {
			problems = append(problems, fmt.Sprintf("关系类型 '%s' 的 endNode '%s' 未定义", relType, rel.EndNode))
		}
		for srcName, binding := range rel.Sources {
			if _, ok := c.Sources[srcName]; !ok {
				problems = append(problems, fmt.Sprintf("关系类型 '%s' 引用了未定义的源 '%s'", relType, srcName))
			}
			if binding.StartKey == "" || binding.EndKey == "" {
				problems = append(problems, fmt.Sprintf("关系类型 '%s' 的源 '%s' 缺少 startKey/endKey", relType, srcName))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("配置校验失败:\n  - %s", strings.Join(problems, "\n  - "))
}

// NodeSourceOrder 返回某个节点类型的源名称，按稳定顺序返回。
// yaml map 不保留顺序，因此退而求其次按名称排序，保证合并结果可复现。
func (n NodeConfig) NodeSourceOrder() []string {
	names := make([]string, 0, len(n.Sources))
	for name := range n.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RelSourceOrder 与 NodeSourceOrder 相同，作用于关系来源。
func (r RelConfig) RelSourceOrder() []string {
	names := make([]string, 0, len(r.Sources))
	for name := range r.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
