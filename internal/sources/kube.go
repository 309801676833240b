package sources

import (
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

var (
	kubeOnce   sync.Once
	kubeClient client.Client
	kubeErr    error
)

// NewKubeClient returns a controller-runtime client, created once and shared by every ConfigMap source
func NewKubeClient() (client.Reader, error) {
	kubeOnce.Do(func() {
		restConfig, err := getKubernetesConfig()
		if err != nil {
			kubeErr = fmt.Errorf("failed to load kubernetes configuration: %w", err)
			return
		}
		kubeClient, kubeErr = createKubernetesClient(restConfig)
	})
	if kubeErr != nil {
		return nil, kubeErr
	}
	return kubeClient, nil
}

// getKubernetesConfig tries the in-cluster config first, then falls back to kubeconfig
func getKubernetesConfig() (*rest.Config, error) {
	cfg, err := rest.InClusterConfig()
	if err == nil {
		return cfg, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)
	return kubeConfig.ClientConfig()
}

// createKubernetesClient creates a client with the core types registered
func createKubernetesClient(restConfig *rest.Config) (client.Client, error) {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add Kubernetes core types to scheme: %w", err)
	}

	k8sClient, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return k8sClient, nil
}
