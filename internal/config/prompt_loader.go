package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// loadPromptsFromFiles resolves the analyzer prompts from inline config
// values and prompt files
func (c *Config) loadPromptsFromFiles() error {
	log.Println("[CONFIG] Starting custom prompt loading")

	prompts := c.Analyzer.Prompts
	loaded := LoadedPrompts{
		System: strings.TrimSpace(prompts.System),
		User:   strings.TrimSpace(prompts.User),
	}

	if loaded.System == "" && prompts.SystemFile != "" {
		content, err := loadPromptFromFile(prompts.SystemFile, "system")
		if err != nil {
			return err
		}
		loaded.System = content
	}

	if loaded.User == "" && prompts.UserFile != "" {
		content, err := loadPromptFromFile(prompts.UserFile, "user")
		if err != nil {
			return err
		}
		loaded.User = content
	}

	c.Analyzer.loaded = loaded
	logPromptLoadingSummary(loaded)
	return nil
}

// loadPromptFromFile loads a prompt from a file with proper error handling and logging
func loadPromptFromFile(filePath, promptType string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s prompt file '%s': %w", promptType, filePath, err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("%s prompt file not found: %s", promptType, absPath)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s prompt file '%s': %w", promptType, absPath, err)
	}

	trimmedContent := strings.TrimSpace(string(content))
	if trimmedContent == "" {
		return "", fmt.Errorf("%s prompt file '%s' is empty", promptType, absPath)
	}

	log.Printf("[CONFIG] Successfully loaded %s prompt from file: %s (%d characters)",
		promptType, absPath, len(trimmedContent))

	return trimmedContent, nil
}

// validatePromptFiles validates that prompt files exist before loading
func (c *Config) validatePromptFiles() error {
	var validationErrors []string

	validateFile := func(filePath, promptType string) {
		if filePath == "" {
			return
		}

		absPath, err := filepath.Abs(filePath)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("invalid path for %s prompt: %s", promptType, filePath))
			return
		}

		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			validationErrors = append(validationErrors, fmt.Sprintf("%s prompt file not found: %s", promptType, absPath))
		}
	}

	validateFile(c.Analyzer.Prompts.SystemFile, "system")
	validateFile(c.Analyzer.Prompts.UserFile, "user")

	if len(validationErrors) > 0 {
		return fmt.Errorf("prompt file validation failed:\n%s", strings.Join(validationErrors, "\n"))
	}

	return nil
}

func logPromptLoadingSummary(loaded LoadedPrompts) {
	log.Println("[CONFIG] === Custom Prompt Loading Summary ===")
	count := 0
	if loaded.System != "" {
		log.Println("[CONFIG] Analyzer system prompt: loaded from config/file")
		count++
	}
	if loaded.User != "" {
		log.Println("[CONFIG] Analyzer user prompt: loaded from config/file")
		count++
	}
	if count == 0 {
		log.Println("[CONFIG] No custom prompts loaded - using built-in defaults")
	} else {
		log.Printf("[CONFIG] Total custom prompts loaded: %d", count)
	}
	log.Println("[CONFIG] ==========================================")
}
