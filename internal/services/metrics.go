package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workspaceProvisioning = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workspace_provisioning_total",
		Help: "EnsureWorkspace outcomes",
	}, []string{"result"})

	attachmentOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attachment_operations_total",
		Help: "Attachment operations by kind and result",
	}, []string{"op", "result"})
)
