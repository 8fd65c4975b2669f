// Package config загружает настройки из YAML-файла и переменных окружения.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Navl-bm/conveyance-note/internal/generator"
)

// DefaultPath - имя файла настроек по умолчанию
const DefaultPath = "conveyance.yaml"

// Config - все настройки приложения
type Config struct {
	CMS      CMSConfig      `yaml:"cms"`
	Template TemplateConfig `yaml:"template"`
	Output   OutputConfig   `yaml:"output"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CMSConfig - подключение к Directus
type CMSConfig struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	Collection string `yaml:"collection"`
	Timeout    string `yaml:"timeout"`
}

// TemplateConfig задает, откуда загружается шаблон. Если URL задан,
// шаблон загружается по HTTP, иначе читается из Dir.
type TemplateConfig struct {
	URL  string `yaml:"url"`
	Dir  string `yaml:"dir"`
	Name string `yaml:"name"`
}

// OutputConfig - каталог для сохранения документов
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// ServerConfig - настройки HTTP-сервера
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	PublicDir       string `yaml:"public_dir"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoggingConfig - настройки журнала
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

func DefaultConfig() *Config {
	return &Config{
		CMS: CMSConfig{
			URL:        "http://localhost:8055",
			Collection: "proposals",
			Timeout:    "30s",
		},
		Template: TemplateConfig{
			Dir:  "public",
			Name: generator.TemplateName,
		},
		Output: OutputConfig{
			Dir: ".",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			PublicDir:       "public",
			ShutdownTimeout: "10s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load читает настройки из YAML-файла. Если файла нет, используются
// значения по умолчанию. Переменные окружения применяются в обоих случаях.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("ошибка чтения настроек: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("ошибка разбора настроек %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save записывает настройки в YAML-файл
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ошибка создания каталога настроек: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("ошибка сериализации настроек: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("ошибка записи настроек: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONVEYANCE_CMS_URL"); v != "" {
		c.CMS.URL = v
	}
	if v := os.Getenv("CONVEYANCE_CMS_TOKEN"); v != "" {
		c.CMS.Token = v
	}
	if v := os.Getenv("CONVEYANCE_TEMPLATE_URL"); v != "" {
		c.Template.URL = v
	}
	if v := os.Getenv("CONVEYANCE_TEMPLATE_DIR"); v != "" {
		c.Template.Dir = v
	}
	if v := os.Getenv("CONVEYANCE_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("CONVEYANCE_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// CMSTimeout возвращает таймаут запросов к CMS
func (c *Config) CMSTimeout() time.Duration {
	return parseDuration(c.CMS.Timeout, 30*time.Second)
}

// ShutdownTimeout возвращает время на остановку сервера
func (c *Config) ShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.Template.Name == "" {
		return fmt.Errorf("не задано имя шаблона (template.name)")
	}
	if c.Template.URL == "" && c.Template.Dir == "" {
		return fmt.Errorf("не задан источник шаблона (template.url или template.dir)")
	}
	if c.Template.URL != "" {
		if err := checkURL("template.url", c.Template.URL); err != nil {
			return err
		}
	}
	if c.CMS.URL != "" {
		if err := checkURL("cms.url", c.CMS.URL); err != nil {
			return err
		}
	}
	if c.CMS.Collection == "" {
		return fmt.Errorf("не задана коллекция CMS (cms.collection)")
	}
	if err := checkDuration("cms.timeout", c.CMS.Timeout); err != nil {
		return err
	}
	return checkDuration("server.shutdown_timeout", c.Server.ShutdownTimeout)
}

func checkDuration(key, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.ParseDuration(v); err != nil {
		return fmt.Errorf("неверное значение %s: %w", key, err)
	}
	return nil
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("неверный адрес %s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("неверный адрес %s: нужна схема http или https", key)
	}
	return nil
}
