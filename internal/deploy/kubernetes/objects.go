package kubernetes

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	"github.com/ogulcanaydogan/driftgate/internal/deploy"
	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

const (
	LabelPipeline = "driftgate.io/pipeline"
	LabelStep     = "driftgate.io/step"
	LabelModel    = "driftgate.io/model"
	LabelUUID     = "driftgate.io/uuid"

	AnnotationModelURI       = "driftgate.io/model-uri"
	AnnotationRunID          = "driftgate.io/run-id"
	AnnotationImplementation = "driftgate.io/implementation"
	AnnotationSecret         = "driftgate.io/secret"
	AnnotationUpdatedAt      = "driftgate.io/updated-at"

	// DefaultImage serves models with the implementation named by
	// SERVER_IMPLEMENTATION.
	DefaultImage = "docker.io/seldonio/mlserver:1.6.0"

	containerName = "model-server"
	portName      = "http"
	servingPort   = int32(8080)
)

// ObjectName returns the Deployment and Service name for a model server.
func ObjectName(modelName, uuid string) string {
	model := sanitize(modelName)
	if len(model) > 40 {
		model = strings.Trim(model[:40], "-")
	}
	short := uuid
	if len(short) > 8 {
		short = short[:8]
	}
	return strings.TrimRight(fmt.Sprintf("driftgate-%s-%s", model, short), "-")
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// Selector matches every model server of key. Empty key fields match anything.
func Selector(key deploy.Key) labels.Selector {
	set := labels.Set{}
	if key.PipelineName != "" {
		set[LabelPipeline] = key.PipelineName
	}
	if key.StepName != "" {
		set[LabelStep] = key.StepName
	}
	if key.ModelName != "" {
		set[LabelModel] = key.ModelName
	}
	return labels.SelectorFromSet(set)
}

func objectLabels(key deploy.Key, uuid string) map[string]string {
	return map[string]string{
		LabelPipeline: key.PipelineName,
		LabelStep:     key.StepName,
		LabelModel:    key.ModelName,
		LabelUUID:     uuid,
	}
}

func validateImage(image string) error {
	if _, err := name.ParseReference(image); err != nil {
		return errors.Mark(errors.Wrapf(err, "invalid model server image %q", image), errors.ErrInvalidConfig)
	}
	return nil
}

func imageFor(cfg deploy.ServiceConfig) string {
	if cfg.Image != "" {
		return cfg.Image
	}
	return DefaultImage
}

func container(cfg deploy.ServiceConfig) kubecore.Container {
	c := kubecore.Container{
		Name:  containerName,
		Image: imageFor(cfg),
		Env: []kubecore.EnvVar{
			{Name: "MODEL_URI", Value: cfg.ModelURI},
			{Name: "MODEL_NAME", Value: cfg.ModelName},
			{Name: "SERVER_IMPLEMENTATION", Value: cfg.Implementation},
		},
		Ports: []kubecore.ContainerPort{
			{Name: portName, ContainerPort: servingPort, Protocol: kubecore.ProtocolTCP},
		},
		ReadinessProbe: &kubecore.Probe{
			ProbeHandler: kubecore.ProbeHandler{
				TCPSocket: &kubecore.TCPSocketAction{Port: intstr.FromString(portName)},
			},
			PeriodSeconds: 5,
		},
	}
	if cfg.SecretName != "" {
		c.EnvFrom = []kubecore.EnvFromSource{
			{SecretRef: &kubecore.SecretEnvSource{
				LocalObjectReference: kubecore.LocalObjectReference{Name: cfg.SecretName},
			}},
		}
	}
	return c
}

func annotations(cfg deploy.ServiceConfig, now time.Time) map[string]string {
	return map[string]string{
		AnnotationModelURI:       cfg.ModelURI,
		AnnotationRunID:          cfg.RunID,
		AnnotationImplementation: cfg.Implementation,
		AnnotationSecret:         cfg.SecretName,
		AnnotationUpdatedAt:      now.UTC().Format(time.RFC3339Nano),
	}
}

func newDeployment(objName, namespace, uuid string, cfg deploy.ServiceConfig, replicas int32, now time.Time) *kubeapps.Deployment {
	lbls := objectLabels(cfg.Key, uuid)
	return &kubeapps.Deployment{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:        objName,
			Namespace:   namespace,
			Labels:      lbls,
			Annotations: annotations(cfg, now),
		},
		Spec: kubeapps.DeploymentSpec{
			Replicas: ptr.To(replicas),
			Selector: &kubeapimeta.LabelSelector{MatchLabels: map[string]string{LabelUUID: uuid}},
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: lbls},
				Spec: kubecore.PodSpec{
					Containers: []kubecore.Container{container(cfg)},
				},
			},
		},
	}
}

func newService(objName, namespace, uuid string, key deploy.Key) *kubecore.Service {
	return &kubecore.Service{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      objName,
			Namespace: namespace,
			Labels:    objectLabels(key, uuid),
		},
		Spec: kubecore.ServiceSpec{
			Type:     kubecore.ServiceTypeClusterIP,
			Selector: map[string]string{LabelUUID: uuid},
			Ports: []kubecore.ServicePort{
				{Name: portName, Port: servingPort, TargetPort: intstr.FromString(portName)},
			},
		},
	}
}

// PredictionURL is the in-cluster inference endpoint of a model server.
func PredictionURL(objName, namespace, implementation string) string {
	return fmt.Sprintf("http://%s.%s.svc.cluster.local:%d%s", objName, namespace, servingPort, deploy.PredictionPath(implementation))
}

// stateOf derives the serving state from a Deployment.
func stateOf(d *kubeapps.Deployment) deploy.Status {
	replicas := int32(1)
	if d.Spec.Replicas != nil {
		replicas = *d.Spec.Replicas
	}
	if replicas == 0 {
		return deploy.Status{State: deploy.StateStopped}
	}
	for _, c := range d.Status.Conditions {
		if c.Type == kubeapps.DeploymentReplicaFailure && c.Status == kubecore.ConditionTrue {
			return deploy.Status{State: deploy.StateFailed, LastError: c.Message}
		}
		if c.Type == kubeapps.DeploymentProgressing && c.Status == kubecore.ConditionFalse {
			return deploy.Status{State: deploy.StateFailed, LastError: c.Message}
		}
	}
	// Ready counts old pods too until the rollout has replaced them.
	rolledOut := d.Status.UpdatedReplicas >= replicas && d.Status.Replicas == d.Status.UpdatedReplicas
	if d.Status.ObservedGeneration >= d.Generation && rolledOut && d.Status.ReadyReplicas >= replicas {
		return deploy.Status{State: deploy.StateRunning}
	}
	return deploy.Status{State: deploy.StateDeploying}
}

// serviceOf rebuilds the deployer view of a Deployment.
func serviceOf(d *kubeapps.Deployment) *deploy.Service {
	ann := d.Annotations
	replicas := int32(0)
	if d.Spec.Replicas != nil {
		replicas = *d.Spec.Replicas
	}
	cfg := deploy.ServiceConfig{
		Key: deploy.Key{
			PipelineName: d.Labels[LabelPipeline],
			StepName:     d.Labels[LabelStep],
			ModelName:    d.Labels[LabelModel],
		},
		RunID:          ann[AnnotationRunID],
		ModelURI:       ann[AnnotationModelURI],
		Replicas:       replicas,
		Implementation: ann[AnnotationImplementation],
		SecretName:     ann[AnnotationSecret],
		Namespace:      d.Namespace,
	}
	if cs := d.Spec.Template.Spec.Containers; len(cs) > 0 {
		cfg.Image = cs[0].Image
	}
	updated, _ := time.Parse(time.RFC3339Nano, ann[AnnotationUpdatedAt])
	return &deploy.Service{
		UUID:          d.Labels[LabelUUID],
		Config:        cfg,
		Status:        stateOf(d),
		PredictionURL: PredictionURL(d.Name, d.Namespace, cfg.Implementation),
		UpdatedAt:     updated,
	}
}
