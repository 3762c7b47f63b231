package service_test

import (
	"context"
	"errors"
	"testing"

	"ember-chat/backend/internal/llm"
	"ember-chat/backend/internal/llm/mocks"
	"ember-chat/backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func setupModelService(t *testing.T) (*service.ModelService, *mocks.MockProvider) {
	mockLLMProvider := mocks.NewMockProvider(t)
	modelService := service.NewModelService(mockLLMProvider, "10m")
	return modelService, mockLLMProvider
}

func TestModelService_List(t *testing.T) {
	ctx := context.Background()
	modelService, mockLLMProvider := setupModelService(t)

	expectedResponse := &llm.ListModelsResponse{
		Models: []llm.ModelSummary{{Name: "test-model"}},
	}
	expectedError := errors.New("provider error")

	testCases := []struct {
		name         string
		setupMock    func()
		expectError  bool
		expectedResp *llm.ListModelsResponse
		expectedErr  error
	}{
		{
			name: "Success",
			setupMock: func() {
				mockLLMProvider.On("ListModels", ctx).Return(expectedResponse, nil).Once()
			},
			expectError:  false,
			expectedResp: expectedResponse,
		},
		{
			name: "Failure - Provider Error",
			setupMock: func() {
				mockLLMProvider.On("ListModels", ctx).Return(nil, expectedError).Once()
			},
			expectError: true,
			expectedErr: expectedError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			resp, err := modelService.List(ctx)

			if tc.expectError {
				assert.Error(t, err)
				assert.Equal(t, tc.expectedErr, err)
				assert.Nil(t, resp)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedResp, resp)
			}

			mockLLMProvider.AssertExpectations(t)
		})
	}
}

func TestModelService_Delete(t *testing.T) {
	ctx := context.Background()
	modelService, mockLLMProvider := setupModelService(t)

	req := &llm.DeleteModelRequest{Name: "test-model"}
	expectedError := errors.New("provider error")

	testCases := []struct {
		name        string
		setupMock   func()
		expectError bool
		expectedErr error
	}{
		{
			name: "Success",
			setupMock: func() {
				mockLLMProvider.On("DeleteModel", ctx, req).Return(nil).Once()
			},
			expectError: false,
		},
		{
			name: "Failure - Provider Error",
			setupMock: func() {
				mockLLMProvider.On("DeleteModel", ctx, req).Return(expectedError).Once()
			},
			expectError: true,
			expectedErr: expectedError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			err := modelService.Delete(ctx, req)

			if tc.expectError {
				assert.Error(t, err)
				assert.Equal(t, tc.expectedErr, err)
			} else {
				assert.NoError(t, err)
			}
			mockLLMProvider.AssertExpectations(t)
		})
	}
}

func TestModelService_Show(t *testing.T) {
	ctx := context.Background()
	modelService, mockLLMProvider := setupModelService(t)

	req := &llm.ShowModelRequest{Name: "test-model"}
	expectedResponse := &llm.ModelInfo{Modelfile: "FROM scratch"}
	expectedError := errors.New("provider error")

	testCases := []struct {
		name         string
		setupMock    func()
		expectError  bool
		expectedResp *llm.ModelInfo
		expectedErr  error
	}{
		{
			name: "Success",
			setupMock: func() {
				mockLLMProvider.On("ShowModelInfo", ctx, req).Return(expectedResponse, nil).Once()
			},
			expectError:  false,
			expectedResp: expectedResponse,
		},
		{
			name: "Failure - Provider Error",
			setupMock: func() {
				mockLLMProvider.On("ShowModelInfo", ctx, req).Return(nil, expectedError).Once()
			},
			expectError: true,
			expectedErr: expectedError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			resp, err := modelService.Show(ctx, req)

			if tc.expectError {
				assert.Error(t, err)
				assert.Equal(t, tc.expectedErr, err)
				assert.Nil(t, resp)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedResp, resp)
			}
			mockLLMProvider.AssertExpectations(t)
		})
	}
}

func TestModelService_Pull(t *testing.T) {
	ctx := context.Background()
	modelService, mockLLMProvider := setupModelService(t)

	req := &llm.PullModelRequest{Name: "test-model"}
	expectedError := errors.New("provider error")

	testCases := []struct {
		name        string
		setupMock   func()
		expectError bool
		expectedErr error
	}{
		{
			name: "Success",
			setupMock: func() {
				mockLLMProvider.On("PullModel", ctx, req, mock.Anything).Return(nil).Once()
			},
			expectError: false,
		},
		{
			name: "Failure - Provider Error",
			setupMock: func() {
				mockLLMProvider.On("PullModel", ctx, req, mock.Anything).Return(expectedError).Once()
			},
			expectError: true,
			expectedErr: expectedError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			testChan := make(chan llm.PullStatus, 1)

			go func() {
				for range testChan {
				}
			}()

			err := modelService.Pull(ctx, req, testChan)

			if tc.expectError {
				assert.Error(t, err)
				assert.Equal(t, tc.expectedErr, err)
			} else {
				assert.NoError(t, err)
			}
			mockLLMProvider.AssertExpectations(t)

			close(testChan)
		})
	}
}

func TestModelService_Switch(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Unload old model and warm up new one", func(t *testing.T) {
		modelService, mockLLMProvider := setupModelService(t)

		mockLLMProvider.On("Generate", ctx, mock.MatchedBy(func(req *llm.GenerateRequest) bool {
			return req.Model == "old-model" && string(req.KeepAlive) == "0"
		})).Return(&llm.GenerateResponse{Done: true}, nil).Once()

		mockLLMProvider.On("Generate", ctx, mock.MatchedBy(func(req *llm.GenerateRequest) bool {
			return req.Model == "new-model" && string(req.KeepAlive) == `"10m"`
		})).Return(&llm.GenerateResponse{Done: true}, nil).Once()

		err := modelService.Switch(ctx, "old-model", "new-model")
		assert.NoError(t, err)
	})

	t.Run("Success - No previous model, only warm up", func(t *testing.T) {
		modelService, mockLLMProvider := setupModelService(t)

		mockLLMProvider.On("Generate", ctx, mock.MatchedBy(func(req *llm.GenerateRequest) bool {
			return req.Model == "new-model"
		})).Return(&llm.GenerateResponse{Done: true}, nil).Once()

		err := modelService.Switch(ctx, "", "new-model")
		assert.NoError(t, err)
	})

	t.Run("Success - Same model, no unload issued", func(t *testing.T) {
		modelService, mockLLMProvider := setupModelService(t)

		mockLLMProvider.On("Generate", ctx, mock.MatchedBy(func(req *llm.GenerateRequest) bool {
			return req.Model == "same-model" && string(req.KeepAlive) == `"10m"`
		})).Return(&llm.GenerateResponse{Done: true}, nil).Once()

		err := modelService.Switch(ctx, "same-model", "same-model")
		assert.NoError(t, err)
	})

	t.Run("Success - Unload failure is tolerated", func(t *testing.T) {
		modelService, mockLLMProvider := setupModelService(t)

		mockLLMProvider.On("Generate", ctx, mock.MatchedBy(func(req *llm.GenerateRequest) bool {
			return req.Model == "old-model"
		})).Return(nil, errors.New("unload failed")).Once()

		mockLLMProvider.On("Generate", ctx, mock.MatchedBy(func(req *llm.GenerateRequest) bool {
			return req.Model == "new-model"
		})).Return(&llm.GenerateResponse{Done: true}, nil).Once()

		err := modelService.Switch(ctx, "old-model", "new-model")
		assert.NoError(t, err)
	})

	t.Run("Failure - Warm-up fails", func(t *testing.T) {
		modelService, mockLLMProvider := setupModelService(t)

		mockLLMProvider.On("Generate", ctx, mock.MatchedBy(func(req *llm.GenerateRequest) bool {
			return req.Model == "new-model"
		})).Return(nil, errors.New("model not found")).Once()

		err := modelService.Switch(ctx, "", "new-model")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "could not warm up model 'new-model'")
	})
}
