package jobs

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/visatrack/timeline-backend/models"
	"github.com/visatrack/timeline-backend/services"
)

// BulletinRefreshJob periodically re-locates the published bulletin and
// clears the cutoff cache when a new month appears, so a long-running server
// does not keep serving last month's cutoffs.
type BulletinRefreshJob struct {
	Resolver    *services.BulletinResolver
	CutoffCache *services.CutoffCacheService

	mutex   sync.Mutex
	lastRef models.BulletinRef
}

func NewBulletinRefreshJob(resolver *services.BulletinResolver, cutoffCache *services.CutoffCacheService) *BulletinRefreshJob {
	return &BulletinRefreshJob{
		Resolver:    resolver,
		CutoffCache: cutoffCache,
	}
}

func (j *BulletinRefreshJob) Run() {
	logrus.Info("Starting Bulletin Refresh Job")

	ref, err := j.Resolver.LocateCurrentBulletin()
	if err != nil {
		logrus.Errorf("Bulletin Refresh Job: failed to locate current bulletin: %v", err)
		return
	}

	j.mutex.Lock()
	changed := ref.Month != j.lastRef.Month || ref.Year != j.lastRef.Year
	previous := j.lastRef
	j.lastRef = ref
	j.mutex.Unlock()

	if !changed {
		removed := j.CutoffCache.CleanupExpired()
		if removed > 0 {
			logrus.Infof("Bulletin Refresh Job: removed %d expired cutoff cache entries", removed)
		}
		return
	}

	j.CutoffCache.Clear()
	fields := logrus.Fields{
		"current_month": ref.Month.String(),
		"current_year":  ref.Year,
		"url":           ref.URL,
	}
	if previous.Year != 0 {
		fields["previous_month"] = previous.Month.String()
		fields["previous_year"] = previous.Year
	}
	logrus.WithFields(fields).Info("Bulletin Refresh Job: published bulletin changed, cutoff cache cleared")
}

// CurrentBulletin returns the last successfully located bulletin reference.
func (j *BulletinRefreshJob) CurrentBulletin() models.BulletinRef {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.lastRef
}
