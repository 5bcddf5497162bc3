package kubernetes

import (
	"os"
	"path/filepath"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// Connect builds a clientset.
//
// The kubeconfig is searched in
//
// - `~/.kube/config`
//
// - environment variable `KUBECONFIG`
//
// kubeContext, when not empty, replaces the current context of that file.
// When no kubeconfig is found, the in-cluster config is used.
func Connect(kubeContext string) (k8s.Interface, error) {
	kubeconfig := ""

	// priority 1 (least): ~/.kube/config
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	// priority 2: envvar KUBECONFIG
	if k := os.Getenv("KUBECONFIG"); k != "" {
		kubeconfig = k
	}

	if kubeconfig != "" {
		stat, err := os.Stat(kubeconfig)
		if os.IsNotExist(err) || (err == nil && stat.IsDir()) {
			kubeconfig = ""
		}
	}

	var config *rest.Config
	var err error
	if kubeconfig == "" {
		if kubeContext != "" {
			return nil, errors.WithHintf(
				errors.Newf("kubernetes context %q requested but no kubeconfig was found", kubeContext),
				"set KUBECONFIG or create ~/.kube/config",
			)
		}
		config, err = rest.InClusterConfig()
	} else {
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			&clientcmd.ConfigOverrides{CurrentContext: kubeContext},
		).ClientConfig()
	}
	if err != nil {
		return nil, errors.Wrap(err, "load kubernetes client config")
	}

	clientset, err := k8s.NewForConfig(config)
	if err != nil {
		return nil, errors.Wrap(err, "create kubernetes clientset")
	}
	return clientset, nil
}
