package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"resumatch/internal/errors"
	"resumatch/internal/types"
	"resumatch/internal/utils"
)

// StdinArg reads the job description from standard input
const StdinArg = "-"

// FileProcessor handles common file operations
type FileProcessor struct {
	logger  *errors.Logger
	maxSize int64
	stdin   io.Reader
}

// NewFileProcessor creates a new file processor instance. maxSize bounds
// input files; 0 disables the check.
func NewFileProcessor(logger *errors.Logger, maxSize int64) *FileProcessor {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &FileProcessor{logger: logger, maxSize: maxSize, stdin: os.Stdin}
}

// WithStdin replaces the reader used for StdinArg
func (fp *FileProcessor) WithStdin(r io.Reader) *FileProcessor {
	fp.stdin = r
	return fp
}

// ReadBytes reads a file with proper error handling
func (fp *FileProcessor) ReadBytes(filename string) ([]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}
	return content, nil
}

// ReadFile reads a text file
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	content, err := fp.ReadBytes(filename)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.NewIOError(errors.ErrCodeFileNotWritable,
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	if err := os.WriteFile(filename, []byte(content), 0600); err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotWritable,
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}
	return nil
}

// ReadResume validates and reads a resume file in one of the accepted formats
func (fp *FileProcessor) ReadResume(filename string) ([]byte, error) {
	if err := utils.ValidateInputFile(filename, fp.maxSize); err != nil {
		return nil, errors.NewValidationError("INVALID_INPUT_FILE",
			fmt.Sprintf("Invalid resume file %s", filename), err)
	}
	if !utils.IsResumeFile(filename) {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Unsupported resume format %q, expected one of %s",
				utils.GetFileExtension(filename), strings.Join(utils.ResumeExtensions, ", ")), nil)
	}
	return fp.ReadBytes(filename)
}

// ReadJobDescription reads the job description from a file, or from
// standard input when source is StdinArg
func (fp *FileProcessor) ReadJobDescription(source string) (string, error) {
	var (
		content string
		err     error
	)
	if source == StdinArg {
		content, err = fp.readStdin()
	} else {
		if verr := utils.ValidateInputFile(source, fp.maxSize); verr != nil {
			return "", errors.NewValidationError("INVALID_INPUT_FILE",
				fmt.Sprintf("Invalid job description file %s", source), verr)
		}
		if !utils.IsTextFile(source) {
			fp.logger.Warn("File may not be a text file", "filename", source)
		}
		content, err = fp.ReadFile(source)
	}
	if err != nil {
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest, "job description is empty", nil)
	}
	return content, nil
}

func (fp *FileProcessor) readStdin() (string, error) {
	r := fp.stdin
	if fp.maxSize > 0 {
		r = io.LimitReader(r, fp.maxSize+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable, "Failed to read standard input", err)
	}
	if fp.maxSize > 0 && int64(len(content)) > fp.maxSize {
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("job description is larger than the %s limit", utils.FormatFileSize(fp.maxSize)), nil)
	}
	return string(content), nil
}

// BuildAnalysisRequest reads both inputs of an analysis
func (fp *FileProcessor) BuildAnalysisRequest(resumeFile, jobSource string, opts AnalysisOptions) (types.AnalysisRequest, error) {
	resume, err := fp.ReadResume(resumeFile)
	if err != nil {
		return types.AnalysisRequest{}, err
	}
	jd, err := fp.ReadJobDescription(jobSource)
	if err != nil {
		return types.AnalysisRequest{}, err
	}

	fp.logger.Debug("Analysis inputs read",
		"resume", resumeFile,
		"resume_size", utils.FormatFileSize(int64(len(resume))),
		"job_description_chars", len(jd))

	return types.AnalysisRequest{
		ResumeFilename:          filepath.Base(resumeFile),
		Resume:                  resume,
		JobDescription:          jd,
		GenerateFeedback:        opts.Feedback,
		GenerateOptimizedResume: opts.OptimizedResume,
		GenerateCoverLetter:     opts.CoverLetter,
	}, nil
}

// AnalysisOptions are the optional sections of an analysis
type AnalysisOptions struct {
	Feedback        bool
	OptimizedResume bool
	CoverLetter     bool
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}
