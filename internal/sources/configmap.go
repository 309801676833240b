package sources

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/stacklok/thv-confd/internal/config"
)

// DefaultNamespace is used when a ConfigMap source does not name one
const DefaultNamespace = "default"

// configMapSource reads the data of a Kubernetes ConfigMap
type configMapSource struct {
	client client.Reader
	key    types.NamespacedName
	entry  string
	format string
}

// NewConfigMapSource creates a ConfigMap source reading through k8sClient
func NewConfigMapSource(cfg *config.ConfigMapConfig, k8sClient client.Reader) (Source, error) {
	if cfg == nil || cfg.Name == "" {
		return nil, fmt.Errorf("configMap name cannot be empty")
	}
	if k8sClient == nil {
		return nil, fmt.Errorf("a kubernetes client is required for configMap sources")
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	format := cfg.Format
	if format == "" && cfg.Key != "" {
		format = FormatFromPath(cfg.Key)
	}
	return &configMapSource{
		client: k8sClient,
		key:    types.NamespacedName{Name: cfg.Name, Namespace: namespace},
		entry:  cfg.Key,
		format: format,
	}, nil
}

func (*configMapSource) Type() string {
	return config.SourceTypeConfigMap
}

// Fetch returns every entry as a string, or the decoded document stored under the configured key
func (s *configMapSource) Fetch(ctx context.Context) (map[string]any, error) {
	configMap := &corev1.ConfigMap{}
	if err := s.client.Get(ctx, s.key, configMap); err != nil {
		return nil, fetchError(config.SourceTypeConfigMap,
			fmt.Errorf("failed to get ConfigMap %s: %w", s.key, err))
	}

	if s.entry == "" {
		data, _ := Normalize(configMap.Data).(map[string]any)
		return data, nil
	}

	data, ok := configMap.Data[s.entry]
	if !ok {
		return nil, fetchError(config.SourceTypeConfigMap,
			fmt.Errorf("key %s not found in ConfigMap %s", s.entry, s.key))
	}

	doc, err := Decode([]byte(data), s.format)
	if err != nil {
		return nil, fetchError(config.SourceTypeConfigMap, fmt.Errorf("ConfigMap %s key %s: %w", s.key, s.entry, err))
	}
	return doc, nil
}
