// SPDX-License-Identifier: MIT

// Package cloud translates the quality rung table into a single remote
// MediaConvert transcoding job and reports its status.
package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	mctypes "github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
	"github.com/rs/zerolog"

	"github.com/InsiderP/video-streaming/internal/config"
	"github.com/InsiderP/video-streaming/internal/media"
)

// api is the slice of the MediaConvert client the adapter uses; narrowed
// for testability.
type api interface {
	CreateJob(ctx context.Context, in *mediaconvert.CreateJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.CreateJobOutput, error)
	GetJob(ctx context.Context, in *mediaconvert.GetJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.GetJobOutput, error)
}

// Adapter submits transcoding jobs to MediaConvert and polls their status.
type Adapter struct {
	api     api
	roleARN string
	bucket  string
	logger  zerolog.Logger
}

// OutputLocation is one per-rung output of a completed job, keyed relative
// to the output bucket.
type OutputLocation struct {
	Quality string
	Key     string
}

// JobState is the observed state of one remote job.
type JobState struct {
	Status   media.JobStatus
	Progress float64 // 0..100
	Error    string
	Outputs  []OutputLocation // populated on Complete
}

// NewAdapter builds the adapter from cloud configuration.
func NewAdapter(ctx context.Context, cfg config.CloudConfig, logger zerolog.Logger) (*Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("cloud: load aws config: %w", err)
	}

	client := mediaconvert.NewFromConfig(awsCfg, func(o *mediaconvert.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Adapter{
		api:     client,
		roleARN: cfg.RoleARN,
		bucket:  cfg.Bucket,
		logger:  logger,
	}, nil
}

// Submit creates one job describing all quality rungs and returns the job
// id. Missing account endpoint or role is a configuration error raised
// here, not a per-job failure.
func (a *Adapter) Submit(ctx context.Context, videoID, inputLocation, outputPrefix string, rungs []media.QualityRung) (string, error) {
	if a.roleARN == "" {
		return "", &ConfigError{Reason: "missing MediaConvert role ARN"}
	}
	if len(rungs) == 0 {
		return "", &ConfigError{Reason: "empty quality rung table"}
	}

	destination := fmt.Sprintf("s3://%s/%s/index", a.bucket, strings.Trim(outputPrefix, "/"))

	outputs := make([]mctypes.Output, 0, len(rungs))
	for _, r := range rungs {
		outputs = append(outputs, buildHLSOutput(r))
	}

	in := &mediaconvert.CreateJobInput{
		Role: aws.String(a.roleARN),
		Tags: map[string]string{"video_id": videoID},
		Settings: &mctypes.JobSettings{
			Inputs: []mctypes.Input{
				{
					FileInput:      aws.String(inputLocation),
					TimecodeSource: mctypes.InputTimecodeSourceZerobased,
					VideoSelector:  &mctypes.VideoSelector{},
					AudioSelectors: map[string]mctypes.AudioSelector{
						"Audio Selector 1": {DefaultSelection: mctypes.AudioDefaultSelectionDefault},
					},
				},
			},
			OutputGroups: []mctypes.OutputGroup{
				{
					Name: aws.String("HLS"),
					OutputGroupSettings: &mctypes.OutputGroupSettings{
						Type: mctypes.OutputGroupTypeHlsGroupSettings,
						HlsGroupSettings: &mctypes.HlsGroupSettings{
							Destination:      aws.String(destination),
							SegmentLength:    aws.Int32(media.SegmentSeconds),
							MinSegmentLength: aws.Int32(0),
						},
					},
					Outputs: outputs,
				},
			},
		},
	}

	out, err := a.api.CreateJob(ctx, in)
	if err != nil {
		return "", fmt.Errorf("cloud: create job: %w", err)
	}
	jobID := aws.ToString(out.Job.Id)

	a.logger.Info().
		Str("video_id", videoID).
		Str("job_id", jobID).
		Int("outputs", len(rungs)).
		Msg("submitted cloud transcoding job")

	return jobID, nil
}

// GetStatus reports the current state of a job. On Complete it lists one
// output key per rung, derived from the job's own settings so the mapping
// survives adapter restarts.
func (a *Adapter) GetStatus(ctx context.Context, jobID string) (*JobState, error) {
	out, err := a.api.GetJob(ctx, &mediaconvert.GetJobInput{Id: aws.String(jobID)})
	if err != nil {
		return nil, fmt.Errorf("cloud: get job %s: %w", jobID, err)
	}
	job := out.Job

	state := &JobState{}
	switch job.Status {
	case mctypes.JobStatusSubmitted:
		state.Status = media.JobSubmitted
	case mctypes.JobStatusProgressing:
		state.Status = media.JobProgressing
	case mctypes.JobStatusComplete:
		state.Status = media.JobComplete
		state.Progress = 100
	case mctypes.JobStatusError, mctypes.JobStatusCanceled:
		state.Status = media.JobError
		state.Error = aws.ToString(job.ErrorMessage)
		if state.Error == "" {
			state.Error = fmt.Sprintf("job %s: %s", jobID, job.Status)
		}
	default:
		state.Status = media.JobSubmitted
	}

	if state.Status == media.JobProgressing {
		state.Progress = jobProgress(job)
	}

	if state.Status == media.JobComplete {
		outputs, err := outputsFromSettings(job.Settings)
		if err != nil {
			return nil, err
		}
		state.Outputs = outputs
	}

	return state, nil
}

// jobProgress prefers the service's own estimate and otherwise derives one
// from how many declared outputs already report completed details.
func jobProgress(job *mctypes.Job) float64 {
	if job.JobPercentComplete != nil && *job.JobPercentComplete > 0 {
		return float64(*job.JobPercentComplete)
	}

	declared := 0
	if job.Settings != nil {
		for _, g := range job.Settings.OutputGroups {
			declared += len(g.Outputs)
		}
	}
	if declared == 0 {
		return 0
	}

	done := 0
	for _, g := range job.OutputGroupDetails {
		for _, d := range g.OutputDetails {
			if d.DurationInMs != nil && *d.DurationInMs > 0 {
				done++
			}
		}
	}
	return float64(done) / float64(declared) * 100
}

// outputsFromSettings reconstructs the per-rung playlist keys from the
// job's destination and name modifiers.
func outputsFromSettings(settings *mctypes.JobSettings) ([]OutputLocation, error) {
	if settings == nil || len(settings.OutputGroups) == 0 {
		return nil, fmt.Errorf("cloud: job settings missing output groups")
	}
	group := settings.OutputGroups[0]
	if group.OutputGroupSettings == nil || group.OutputGroupSettings.HlsGroupSettings == nil {
		return nil, fmt.Errorf("cloud: job settings missing HLS group")
	}

	destination := aws.ToString(group.OutputGroupSettings.HlsGroupSettings.Destination)
	base := strings.TrimPrefix(destination, "s3://")
	if i := strings.IndexByte(base, '/'); i >= 0 {
		base = base[i+1:] // strip bucket, keep key prefix
	}

	locations := make([]OutputLocation, 0, len(group.Outputs))
	for _, o := range group.Outputs {
		modifier := aws.ToString(o.NameModifier)
		locations = append(locations, OutputLocation{
			Quality: strings.TrimPrefix(modifier, "_"),
			Key:     base + modifier + ".m3u8",
		})
	}
	return locations, nil
}

// buildHLSOutput renders one quality rung as a MediaConvert HLS output.
func buildHLSOutput(r media.QualityRung) mctypes.Output {
	return mctypes.Output{
		NameModifier: aws.String("_" + r.Quality),
		ContainerSettings: &mctypes.ContainerSettings{
			Container:    mctypes.ContainerTypeM3u8,
			M3u8Settings: &mctypes.M3u8Settings{},
		},
		VideoDescription: &mctypes.VideoDescription{
			Width:  aws.Int32(int32(r.Width)),
			Height: aws.Int32(int32(r.Height)),
			CodecSettings: &mctypes.VideoCodecSettings{
				Codec: mctypes.VideoCodecH264,
				H264Settings: &mctypes.H264Settings{
					MaxBitrate:      aws.Int32(int32(r.BitrateKbps * 1000)),
					RateControlMode: mctypes.H264RateControlModeQvbr,
					QvbrSettings: &mctypes.H264QvbrSettings{
						QvbrQualityLevel: aws.Int32(7),
					},
					SceneChangeDetect: mctypes.H264SceneChangeDetectEnabled,
				},
			},
		},
		AudioDescriptions: []mctypes.AudioDescription{
			{
				CodecSettings: &mctypes.AudioCodecSettings{
					Codec: mctypes.AudioCodecAac,
					AacSettings: &mctypes.AacSettings{
						Bitrate:    aws.Int32(128000),
						SampleRate: aws.Int32(48000),
						CodingMode: mctypes.AacCodingModeCodingMode20,
					},
				},
			},
		},
	}
}
