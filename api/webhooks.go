/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/jerry-enebeli/cardsettle/api/model"
	"github.com/jerry-enebeli/cardsettle/internal/apierror"
	"github.com/jerry-enebeli/cardsettle/internal/notification"
)

// HandleCardWebhook runs a signed issuer event through settlement and answers with the status
// code the issuer expects for the outcome.
func (a Api) HandleCardWebhook(c *gin.Context) {
	var webhook model2.CardWebhook
	if err := c.ShouldBindJSON(&webhook); err != nil {
		a.metrics.ObserveWebhook("invalid", http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := webhook.ValidateCardWebhook(); err != nil {
		a.metrics.ObserveWebhook("invalid", http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := webhook.ToEvent()
	outcome, err := a.settle.Process(c.Request.Context(), event)
	if err != nil {
		status := apierror.MapErrorToHTTPStatus(err)
		a.metrics.ObserveWebhook(outcome.Operation.String(), status)
		if status == apierror.StatusUnexpected {
			notification.NotifyError(err)
		}

		logrus.WithFields(logrus.Fields{
			"event":  event.ID,
			"status": status,
		}).Warn("card webhook rejected")
		c.JSON(status, gin.H{"code": apierror.CodeOf(err), "error": err.Error()})
		return
	}

	a.metrics.ObserveWebhook(outcome.Operation.String(), http.StatusOK)
	c.JSON(http.StatusOK, outcome)
}
