// Package kubernetes runs model servers as a Deployment and a Service in a
// cluster namespace.
package kubernetes

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
	"github.com/ogulcanaydogan/driftgate/internal/logging"
)

const (
	DefaultNamespace    = "default"
	DefaultPollInterval = 2 * time.Second
	defaultTimeout      = 120 * time.Second
)

// Deployer is a deploy.Deployer backed by a Kubernetes cluster.
type Deployer struct {
	client       k8s.Interface
	namespace    string
	pollInterval time.Duration
	now          func() time.Time
	log          *zap.SugaredLogger
}

var _ deploy.Deployer = (*Deployer)(nil)

type Option func(*Deployer)

// WithPollInterval sets how often readiness is checked while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(dep *Deployer) { dep.pollInterval = d }
}

func New(client k8s.Interface, namespace string, opts ...Option) *Deployer {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	d := &Deployer{
		client:       client,
		namespace:    namespace,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		log:          logging.Component("deploy.kubernetes"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Deployer) ns(cfg deploy.ServiceConfig) string {
	if cfg.Namespace != "" {
		return cfg.Namespace
	}
	return d.namespace
}

func (d *Deployer) FindModelServer(ctx context.Context, key deploy.Key) ([]*deploy.Service, error) {
	list, err := d.client.AppsV1().Deployments(d.namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: Selector(key).String(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list model servers in %s", d.namespace)
	}
	out := make([]*deploy.Service, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, serviceOf(&list.Items[i]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (d *Deployer) Deploy(ctx context.Context, cfg deploy.ServiceConfig) (*deploy.Service, error) {
	if cfg.ModelURI == "" {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "model uri is required to deploy")
	}
	replicas := cfg.Replicas
	if replicas < 1 {
		replicas = 1
	}
	depl, err := d.create(ctx, cfg, replicas)
	if err != nil {
		return nil, err
	}
	d.log.Infow("created model server",
		logging.FieldService, depl.Labels[LabelUUID],
		logging.FieldNamespace, depl.Namespace,
		logging.FieldModel, cfg.ModelName,
	)
	return d.waitFor(ctx, depl.Namespace, depl.Name, deploy.StateRunning, cfg.Timeout)
}

func (d *Deployer) Register(ctx context.Context, cfg deploy.ServiceConfig) (*deploy.Service, error) {
	depl, err := d.create(ctx, cfg, 0)
	if err != nil {
		return nil, err
	}
	return serviceOf(depl), nil
}

func (d *Deployer) create(ctx context.Context, cfg deploy.ServiceConfig, replicas int32) (*kubeapps.Deployment, error) {
	image := imageFor(cfg)
	if err := validateImage(image); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ns := d.ns(cfg)
	objName := ObjectName(cfg.ModelName, id)

	depl, err := d.client.AppsV1().Deployments(ns).Create(
		ctx, newDeployment(objName, ns, id, cfg, replicas, d.now()), kubeapimeta.CreateOptions{},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "create deployment %s/%s", ns, objName)
	}
	if _, err := d.client.CoreV1().Services(ns).Create(
		ctx, newService(objName, ns, id, cfg.Key), kubeapimeta.CreateOptions{},
	); err != nil && !kubeerr.IsAlreadyExists(err) {
		return nil, errors.Wrapf(err, "create service %s/%s", ns, objName)
	}
	return depl, nil
}

func (d *Deployer) Update(ctx context.Context, svc *deploy.Service, cfg deploy.ServiceConfig) (*deploy.Service, error) {
	ns, objName := d.objectOf(svc)
	depl, err := d.get(ctx, ns, objName)
	if err != nil {
		return nil, err
	}
	image := imageFor(cfg)
	if err := validateImage(image); err != nil {
		return nil, err
	}
	replicas := cfg.Replicas
	if replicas < 1 {
		replicas = 1
	}
	depl.Annotations = annotations(cfg, d.now())
	depl.Spec.Replicas = ptr.To(replicas)
	depl.Spec.Template.Spec.Containers = []kubecore.Container{container(cfg)}
	updated, err := d.client.AppsV1().Deployments(ns).Update(ctx, depl, kubeapimeta.UpdateOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "update deployment %s/%s", ns, objName)
	}
	d.log.Infow("updated model server", logging.FieldService, svc.UUID, logging.FieldNamespace, ns)
	return d.waitFor(ctx, ns, updated.Name, deploy.StateRunning, cfg.Timeout)
}

func (d *Deployer) Stop(ctx context.Context, svc *deploy.Service, timeout time.Duration) (*deploy.Service, error) {
	ns, objName := d.objectOf(svc)
	depl, err := d.get(ctx, ns, objName)
	if err != nil {
		return nil, err
	}
	depl.Spec.Replicas = ptr.To(int32(0))
	depl.Annotations[AnnotationUpdatedAt] = d.now().UTC().Format(time.RFC3339Nano)
	if _, err := d.client.AppsV1().Deployments(ns).Update(ctx, depl, kubeapimeta.UpdateOptions{}); err != nil {
		return nil, errors.Wrapf(err, "scale down deployment %s/%s", ns, objName)
	}
	d.log.Infow("stopped model server", logging.FieldService, svc.UUID, logging.FieldNamespace, ns)
	return d.waitFor(ctx, ns, objName, deploy.StateStopped, timeout)
}

func (d *Deployer) objectOf(svc *deploy.Service) (namespace, objName string) {
	return d.ns(svc.Config), ObjectName(svc.Config.ModelName, svc.UUID)
}

func (d *Deployer) get(ctx context.Context, ns, objName string) (*kubeapps.Deployment, error) {
	depl, err := d.client.AppsV1().Deployments(ns).Get(ctx, objName, kubeapimeta.GetOptions{})
	if kubeerr.IsNotFound(err) {
		return nil, errors.Wrapf(errors.ErrNoRunningServer, "deployment %s/%s not found", ns, objName)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get deployment %s/%s", ns, objName)
	}
	if depl.Annotations == nil {
		depl.Annotations = map[string]string{}
	}
	return depl, nil
}

// waitFor polls the Deployment until it reaches want, fails, or timeout
// passes. The last observed service is returned alongside a timeout error.
func (d *Deployer) waitFor(ctx context.Context, ns, objName string, want deploy.State, timeout time.Duration) (*deploy.Service, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var last *deploy.Service
	err := wait.PollUntilContextTimeout(ctx, d.pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		depl, err := d.client.AppsV1().Deployments(ns).Get(ctx, objName, kubeapimeta.GetOptions{})
		if err != nil {
			return false, err
		}
		last = serviceOf(depl)
		switch last.Status.State {
		case deploy.StateFailed:
			return false, errors.Newf("model server %s/%s failed: %s", ns, objName, last.Status.LastError)
		case deploy.StateStopped:
			// pods may still be terminating
			return want == deploy.StateStopped && depl.Status.Replicas == 0, nil
		}
		return last.Status.State == want, nil
	})
	if err != nil {
		if wait.Interrupted(err) {
			return last, errors.Newf("timed out after %s waiting for %s/%s to be %s", timeout, ns, objName, want)
		}
		return last, err
	}
	return last, nil
}
