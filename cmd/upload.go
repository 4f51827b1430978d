package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"covod-recorder/config"
	"covod-recorder/dto"
	"covod-recorder/pkg/covod"
	server2 "covod-recorder/server"
	"covod-recorder/service"
)

// upload publishes a finished recording directly, without going through the
// worker queue: create the lecture, upload the media and any sibling
// timestamp log.
func upload(cfg *config.Config) *cobra.Command {
	var (
		lectureNumber int
		lectureName   string
		courseId      int
		pdfPath       string
	)

	cmd := &cobra.Command{
		Use:   "upload <media-file>",
		Short: "upload a merged recording to the lecture archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server2.SetupLogger(cfg)

			apiClient := covod.NewClient(cfg.API)
			ok, err := apiClient.Login(ctx, cfg.API.Username, cfg.API.Password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if !ok {
				return fmt.Errorf("archive backend rejected credentials")
			}

			uploadService := service.NewUploadService(apiClient, nil)
			lectureId, err := uploadService.Submit(ctx, dto.UploadJobMessage{
				FilePath:      args[0],
				PDFPath:       pdfPath,
				CourseId:      courseId,
				LectureNumber: lectureNumber,
				LectureName:   lectureName,
			})
			if err != nil {
				return err
			}

			zerolog.Ctx(ctx).Info().Int("lecture_id", lectureId).Msg("upload successful")
			return nil
		},
	}

	cmd.Flags().IntVarP(&lectureNumber, "number", "n", 1, "lecture number within the course")
	cmd.Flags().StringVarP(&lectureName, "name", "m", "", "lecture name")
	cmd.Flags().IntVarP(&courseId, "course", "c", 1, "course id")
	cmd.Flags().StringVarP(&pdfPath, "pdf", "p", "", "slide pdf to upload alongside the media")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
